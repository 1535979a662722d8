package admission

import (
	"errors"
	"fmt"
)

// Kind identifies a caller-visible admission failure.
//
// Each Kind maps to exactly one public message. The message is all the caller
// ever sees; the wrapped cause stays on the server side for logging.
type Kind string

const (
	KindMissingParameter  Kind = "missing_parameter"
	KindContentTooLong    Kind = "content_too_long"
	KindEncodingFailed    Kind = "encoding_failed"
	KindSerializationFail Kind = "image_serialization_failed"
	KindUploadFailed      Kind = "upload_failed"
	KindPayloadTooLarge   Kind = "encoded_payload_too_large"
	KindBase64Invalid     Kind = "base64_decode_failed"
	KindImageLoadFailed   Kind = "image_load_failed"
	KindImageTooLarge     Kind = "image_too_large"
	KindNoCodeFound       Kind = "no_code_found"
	KindInvalidURL        Kind = "invalid_url"
	KindInsecureScheme    Kind = "insecure_scheme"
	KindInvalidHost       Kind = "invalid_host"
	KindDomainNotAllowed  Kind = "domain_not_allowed"
	KindNotImageExtension Kind = "not_an_image_extension"
	KindInvalidFileSize   Kind = "invalid_file_size"
	KindDownloadFailed    Kind = "download_failed"
	KindHTTPStatus        Kind = "http_error"
	KindNotAnImage        Kind = "not_an_image"
	KindDeclaredTooLarge  Kind = "declared_too_large"
	KindReadFailed        Kind = "read_failed"
)

var messages = map[Kind]string{
	KindContentTooLong:    "Content too long",
	KindEncodingFailed:    "QR creation failed",
	KindSerializationFail: "Image encoding failed",
	KindUploadFailed:      "Upload failed",
	KindPayloadTooLarge:   "Base64 too large",
	KindBase64Invalid:     "Base64 decode failed",
	KindImageLoadFailed:   "Image load failed",
	KindImageTooLarge:     "Image too large",
	KindNoCodeFound:       "No QR code found",
	KindInvalidURL:        "Invalid URL",
	KindInsecureScheme:    "HTTPS required",
	KindInvalidHost:       "Invalid domain",
	KindDomainNotAllowed:  "Domain not allowed",
	KindNotImageExtension: "Must be image file",
	KindInvalidFileSize:   "Invalid file size",
	KindDownloadFailed:    "Download failed",
	KindHTTPStatus:        "HTTP error",
	KindNotAnImage:        "Not an image",
	KindDeclaredTooLarge:  "Too large",
	KindReadFailed:        "Read failed",
}

// Error is returned by every pipeline operation.
//
// Error() is deliberately opaque: it returns the fixed public message for
// Kind and nothing from Err. Use Detail or errors.Unwrap for diagnostics.
type Error struct {
	Kind Kind
	// Param names the missing argument for KindMissingParameter.
	Param string
	Err   error
}

func (e *Error) Error() string {
	if e.Kind == KindMissingParameter {
		return fmt.Sprintf("Missing required parameter: %s", e.Param)
	}
	if msg, ok := messages[e.Kind]; ok {
		return msg
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Detail returns the public message followed by the internal cause, if any.
// It must only be written to server-side logs.
func (e *Error) Detail() string {
	if e.Err == nil {
		return e.Error()
	}
	return fmt.Sprintf("%s: %v", e.Error(), e.Err)
}

func fail(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

// MissingParameter reports a required tool argument that was absent or not a
// string.
func MissingParameter(param string) *Error {
	return &Error{Kind: KindMissingParameter, Param: param}
}

// KindOf reports the Kind carried by err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return ""
}
