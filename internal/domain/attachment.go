package domain

import (
	"path"
	"strings"
)

// FileKind classifies an attachment URL by its extension.
type FileKind string

const (
	KindImage   FileKind = "image"
	KindVideo   FileKind = "video"
	KindAudio   FileKind = "audio"
	KindUnknown FileKind = "unknown"
)

var kindByExt = map[string]FileKind{
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".mp4": KindVideo, ".mov": KindVideo, ".avi": KindVideo, ".mkv": KindVideo,
	".mp3": KindAudio, ".wav": KindAudio, ".ogg": KindAudio, ".m4a": KindAudio,
}

// ClassifyFile maps an attachment URL to its kind. A missing or unrecognized
// extension yields KindUnknown, never an error.
func ClassifyFile(fileURL string) FileKind {
	ext := strings.ToLower(path.Ext(fileURL))
	if kind, ok := kindByExt[ext]; ok {
		return kind
	}
	return KindUnknown
}
