package api

import "strings"

// ImageFormat names the output encodings the image tools report.
type ImageFormat string

const (
	// ImagePNG is the png format.
	ImagePNG ImageFormat = "png"
	// ImageJPEG is the jpeg format.
	ImageJPEG ImageFormat = "jpeg"
	// ImageGIF is the gif format.
	ImageGIF ImageFormat = "gif"
	// ImageWebP is the webp format.
	ImageWebP ImageFormat = "webp"
)

// FormatForMIME maps a generation-model MIME type to an image format.
// Unrecognized or empty MIME types default to png.
func FormatForMIME(mime string) ImageFormat {
	switch mime {
	case "image/png":
		return ImagePNG
	case "image/jpeg", "image/jpg":
		return ImageJPEG
	case "image/gif":
		return ImageGIF
	case "image/webp":
		return ImageWebP
	default:
		return ImagePNG
	}
}

// MIMEForAssetContentType classifies a fetched asset's Content-Type header by
// substring match. Anything it cannot place defaults to image/jpeg.
func MIMEForAssetContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "png"):
		return "image/png"
	case strings.Contains(ct, "gif"):
		return "image/gif"
	case strings.Contains(ct, "webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ImageFormats returns the closed image-format vocabulary.
func ImageFormats() []ImageFormat {
	return []ImageFormat{ImagePNG, ImageJPEG, ImageGIF, ImageWebP}
}

// ValidImageFormat reports whether s names a known image format.
func ValidImageFormat(s string) bool {
	for _, f := range ImageFormats() {
		if s == string(f) {
			return true
		}
	}
	return false
}

// ImageFormatNames renders the vocabulary for error and help text.
func ImageFormatNames() string {
	names := make([]string, 0, len(ImageFormats()))
	for _, f := range ImageFormats() {
		names = append(names, string(f))
	}
	return strings.Join(names, ", ")
}

// MIMEForFormat returns the canonical MIME type for an image format.
func MIMEForFormat(format ImageFormat) string {
	switch format {
	case ImageJPEG:
		return "image/jpeg"
	case ImageGIF:
		return "image/gif"
	case ImageWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}
