package ledger

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"

	"github.com/smartdevs17/content-rewards/internal/models"
	"github.com/smartdevs17/content-rewards/pkg/utils"
)

var (
	addressType      = reflect.TypeOf(common.Address{})
	hashType         = reflect.TypeOf(common.Hash{})
	submissionStatus = reflect.TypeOf(models.SubmissionStatus(0))
	txStatusType     = reflect.TypeOf(models.TxStatus(""))
)

// Decode maps a normalised wire value onto out
func Decode(input interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			addressHook,
			hashHook,
			boolHook,
			submissionStatusHook,
			txStatusHook,
			numericStringHook,
		),
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return utils.WrapAppError(utils.ErrCodeInternal, "Failed to build decoder", err)
	}

	if err := decoder.Decode(Normalize(input)); err != nil {
		return utils.WrapAppError(utils.ErrCodeDecode, "Failed to decode ledger value", err)
	}
	return nil
}

func addressHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != addressType || from.Kind() != reflect.String {
		return data, nil
	}
	s := strings.TrimSpace(data.(string))
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func hashHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != hashType || from.Kind() != reflect.String {
		return data, nil
	}
	return common.HexToHash(data.(string)), nil
}

func boolHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to.Kind() != reflect.Bool {
		return data, nil
	}
	return NormalizeBool(data)
}

func submissionStatusHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != submissionStatus || from.Kind() != reflect.String {
		return data, nil
	}
	if strings.TrimSpace(data.(string)) == "" {
		return models.SubmissionStatus(0), nil
	}
	return models.ParseSubmissionStatus(data.(string))
}

func txStatusHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if to != txStatusType || from.Kind() != reflect.String {
		return data, nil
	}
	return models.NormalizeTxStatus(data.(string)), nil
}

// numericStringHook accepts decimal strings for integer fields, as large
// ledger integers are carried as strings after normalisation
func numericStringHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	switch to.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cast.ToUint64E(data)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if to == submissionStatus {
			return data, nil
		}
		return cast.ToInt64E(data)
	}
	return data, nil
}
