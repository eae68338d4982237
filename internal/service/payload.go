package service

import (
	"encoding/json"
	"fmt"

	"github.com/rsnash92/builda-club-sub000/internal/models"
	"github.com/rsnash92/builda-club-sub000/pkg/errors"

	"github.com/shopspring/decimal"
)

// Payload values arrive through JSON, so numbers may be float64,
// json.Number, or strings depending on the caller.

func payloadDecimal(payload models.JSONB, key string) (decimal.Decimal, error) {
	raw, ok := payload[key]
	if !ok {
		return decimal.Zero, errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload missing %q", key), nil)
	}
	switch v := raw.(type) {
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload %q is not a number", key), err)
		}
		return d, nil
	case float64:
		return decimal.NewFromFloat(v), nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload %q is not a number", key), err)
		}
		return d, nil
	case int64:
		return decimal.NewFromInt(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return decimal.Zero, errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload %q has unsupported type", key), nil)
	}
}

func payloadInt64(payload models.JSONB, key string) (int64, error) {
	d, err := payloadDecimal(payload, key)
	if err != nil {
		return 0, err
	}
	if !d.IsInteger() {
		return 0, errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload %q must be a whole number", key), nil)
	}
	return d.IntPart(), nil
}

func payloadString(payload models.JSONB, key string) (string, error) {
	raw, ok := payload[key]
	if !ok {
		return "", errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload missing %q", key), nil)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New(errors.ErrInvalidPayload, fmt.Sprintf("payload %q must be a non-empty string", key), nil)
	}
	return s, nil
}
