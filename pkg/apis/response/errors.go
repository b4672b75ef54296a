package response

import "strings"

var errMessages = map[ErrCode]string{
	ErrCodeMalformedJSON:              "The JSON you provided was not well-formed or did not validate against our published format.",
	ErrCodeRequestBody:                "Request body error",
	ErrCodeResourceExists:             "Resource %s already exists.",
	ErrCodeResourceNotFound:           "Resource %s not found.",
	ErrCodeCommandNotFound:            "Command %s is not supported.",
	ErrCodeDeviceNotFound:             "Device %s not found.",
	ErrCodeDeviceNotConnect:           "Device %s is not connected.",
	ErrCodeDeviceOperatorUnSupported:  "Device operation %s is not supported.",
	ErrCodeTooManyJsonPatchOperations: "The JSON patch exceeded the limit of %d operations.",
	ErrCodeInvalidConfiguration:       "Invalid configuration: %s.",
	ErrCodeProtocolUnSupported:        "Protocol %s is not supported.",
	ErrCodeBrandUnSupported:           "Brand %s is not supported.",
	ErrCodeValueRejected:              "Value rejected: %s.",
	ErrCodeInvalidTimeRange:           "Invalid time range: %s.",
}

// !!! IMPORTANT PLEASE READ FIRST !!!
// You SHOULD add new code at the end of enum firstly.

var ErrMalformedJSON = &responseError{
	Code:    ErrCodeMalformedJSON,
	Message: errMessages[ErrCodeMalformedJSON],
}

var ErrRequestBody = &responseError{
	Code:    ErrCodeRequestBody,
	Message: errMessages[ErrCodeRequestBody],
}

func ErrCommandNotFound(command string) error {
	return generateError(ErrCodeCommandNotFound, command)
}

func ErrDeviceNotFound(id string) error {
	return generateError(ErrCodeDeviceNotFound, id)
}

func ErrDeviceNotConnect(id string) error {
	return generateError(ErrCodeDeviceNotConnect, id)
}

func ErrDeviceOperatorUnSupported(op string) error {
	return generateError(ErrCodeDeviceOperatorUnSupported, op)
}

func ErrTooManyJsonPatchOperations(limit int) error {
	return generateError(ErrCodeTooManyJsonPatchOperations, limit)
}

func ErrInvalidConfiguration(err error, violations ...string) error {
	return generateErrorWrapper(ErrCodeInvalidConfiguration, err, strings.Join(violations, "; "))
}

func ErrInvalidDevice(violations ...string) error {
	return generateError(ErrCodeInvalidConfiguration, strings.Join(violations, "; "))
}

func ErrProtocolUnSupported(protocol string) error {
	return generateError(ErrCodeProtocolUnSupported, protocol)
}

func ErrBrandUnSupported(brand string) error {
	return generateError(ErrCodeBrandUnSupported, brand)
}

func ErrValueRejected(err error) error {
	return generateErrorWrapper(ErrCodeValueRejected, err, err.Error())
}

func ErrInvalidTimeRange(reason string) error {
	return generateError(ErrCodeInvalidTimeRange, reason)
}
