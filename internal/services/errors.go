package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRead           = errors.New("read failure")
	ErrDecode         = errors.New("decode failure")
	ErrEncode         = errors.New("encode failure")
	ErrDuplicateAsset = errors.New("duplicate asset path")
	ErrConfiguration  = errors.New("configuration error")
	ErrCanceled       = errors.New("conversion canceled")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrDecode
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Localized messages shown to the person running a conversion.
const (
	MessageRead      = "파일을 읽지 못했습니다."
	MessageDecode    = "변환에 실패했습니다."
	MessageEncode    = "이미지를 만들지 못했습니다."
	MessageInternal  = "내부 오류가 발생했습니다."
	MessageConfig    = "설정이 올바르지 않습니다."
	MessageCancelled = "변환을 중지했습니다."
)

// UserMessage maps a pipeline failure to a short localized message. Internal
// diagnostics are deliberately left out.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return MessageCancelled
	case errors.Is(err, ErrRead):
		return MessageRead
	case errors.Is(err, ErrEncode):
		return MessageEncode
	case errors.Is(err, ErrDuplicateAsset):
		return MessageInternal
	case errors.Is(err, ErrConfiguration):
		return MessageConfig
	default:
		return MessageDecode
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "pipeline failure"
	}
	return strings.Join(parts, ": ")
}
