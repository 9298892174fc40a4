package icon

import (
	"encoding/base64"
	"strings"
)

type Category string

const (
	CategoryImage       Category = "image"
	CategoryVideo       Category = "video"
	CategoryAudio       Category = "audio"
	CategoryArchive     Category = "archive"
	CategoryCode        Category = "code"
	CategoryPDF         Category = "pdf"
	CategoryText        Category = "text"
	CategoryDefault     Category = "default"
	CategoryApplication Category = "application"
)

var extensionCategories = map[string]Category{
	"jpg": CategoryImage, "jpeg": CategoryImage, "png": CategoryImage, "gif": CategoryImage,
	"bmp": CategoryImage, "tiff": CategoryImage, "webp": CategoryImage, "svg": CategoryImage,
	"heic": CategoryImage,

	"mp4": CategoryVideo, "mov": CategoryVideo, "avi": CategoryVideo, "mkv": CategoryVideo,
	"wmv": CategoryVideo, "flv": CategoryVideo, "webm": CategoryVideo,

	"mp3": CategoryAudio, "wav": CategoryAudio, "flac": CategoryAudio, "aac": CategoryAudio,
	"ogg": CategoryAudio, "m4a": CategoryAudio,

	"zip": CategoryArchive, "rar": CategoryArchive, "7z": CategoryArchive, "tar": CategoryArchive,
	"gz": CategoryArchive, "bz2": CategoryArchive, "xz": CategoryArchive, "dmg": CategoryArchive,

	"js": CategoryCode, "ts": CategoryCode, "jsx": CategoryCode, "tsx": CategoryCode,
	"py": CategoryCode, "java": CategoryCode, "cpp": CategoryCode, "c": CategoryCode,
	"h": CategoryCode, "rs": CategoryCode, "go": CategoryCode, "php": CategoryCode,
	"rb": CategoryCode, "swift": CategoryCode, "sh": CategoryCode,

	"pdf": CategoryPDF,

	"txt": CategoryText, "md": CategoryText, "rtf": CategoryText,
}

var categorySVGs = map[Category]string{
	CategoryImage:       `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#4F46E5"/><circle cx="11" cy="11" r="3" fill="#fff"/><path d="M6 25l7-8 5 5 3-3 5 6z" fill="#fff"/></svg>`,
	CategoryVideo:       `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#FF6B6B"/><path d="M12 10l8 6-8 6z" fill="#fff"/></svg>`,
	CategoryAudio:       `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#1DB954"/><path d="M13 8v11.5a3.5 3.5 0 1 0 2 3.2V12h7V8z" fill="#fff"/></svg>`,
	CategoryArchive:     `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#FF9500"/><path d="M14 6h4v2h-4zm0 4h4v2h-4zm0 4h4v2h-4zm-1 4h6v6h-6z" fill="#fff"/></svg>`,
	CategoryCode:        `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#077DFF"/><path d="M10 12l4 4-4 4M16 20h6" stroke="#fff" stroke-width="2" stroke-linecap="round" fill="none"/></svg>`,
	CategoryPDF:         `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#DC2626"/><text x="5" y="20" font-family="Arial, sans-serif" font-size="10" font-weight="bold" fill="#fff">PDF</text></svg>`,
	CategoryText:        `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#656565"/><path d="M8 8h8v2H8zm0 4h16v2H8zm0 4h16v2H8zm0 4h8v2H8z" fill="#fff"/></svg>`,
	CategoryDefault:     `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="4" fill="#656565"/><path d="M16 8l2 2h8v16H6V10h8z" fill="#fff"/></svg>`,
	CategoryApplication: `<svg xmlns="http://www.w3.org/2000/svg" width="32" height="32" viewBox="0 0 32 32"><rect width="32" height="32" rx="7" fill="#8E8E93"/><rect x="8" y="8" width="16" height="16" rx="4" fill="#fff"/></svg>`,
}

var categoryURIs = encodeCategoryIcons()

func encodeCategoryIcons() map[Category]string {
	uris := make(map[Category]string, len(categorySVGs))
	for category, svg := range categorySVGs {
		uris[category] = dataURI("image/svg+xml", []byte(svg))
	}
	return uris
}

// CategoryFor maps an extension, with or without its leading dot, to its icon category.
// Unknown extensions fall into CategoryDefault.
func CategoryFor(extension string) Category {
	if category, ok := extensionCategories[strings.ToLower(strings.TrimPrefix(extension, "."))]; ok {
		return category
	}
	return CategoryDefault
}

// CategoryIcon is total: every extension gets an icon.
func CategoryIcon(extension string) string {
	return categoryURIs[CategoryFor(extension)]
}

// ApplicationIcon is the generic icon for a bundle whose own icon could not be decoded.
func ApplicationIcon() string {
	return categoryURIs[CategoryApplication]
}

func dataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
