// Package errors defines the merge engine's error taxonomy. Every error
// carries a machine-readable code in its meta so callers can branch without
// parsing messages.
package errors

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

const (
	CodeNotFound               = "NOT_FOUND"
	CodeInvalidPair            = "INVALID_PAIR"
	CodeLowConfidenceRejected  = "LOW_CONFIDENCE_REJECTED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeMergeFailed            = "MERGE_FAILED"
)

const codeMetaKey = "code"

// NewNotFoundf reports a lead id that does not exist.
func NewNotFoundf(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusNotFound, format, args...).AddMetaValue(codeMetaKey, CodeNotFound)
}

// NewInvalidPairf reports a structurally invalid merge pair, such as merging
// a lead into itself.
func NewInvalidPairf(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...).AddMetaValue(codeMetaKey, CodeInvalidPair)
}

// NewLowConfidenceRejectedf reports a merge refused because the pair scored
// VERY_LOW and no override was supplied.
func NewLowConfidenceRejectedf(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusUnprocessableEntity, format, args...).AddMetaValue(codeMetaKey, CodeLowConfidenceRejected)
}

// NewConcurrentModificationf reports that another operation holds one of the
// lead rows.
func NewConcurrentModificationf(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusConflict, format, args...).AddMetaValue(codeMetaKey, CodeConcurrentModification)
}

// NewMergeFailedf reports a merge transaction that rolled back.
func NewMergeFailedf(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, format, args...).AddMetaValue(codeMetaKey, CodeMergeFailed)
}

// Code extracts the taxonomy code from an error, or "" when it has none.
func Code(err error) string {
	if err == nil || !httperror.IsHTTPError(err) {
		return ""
	}
	httperr := httperror.ToHTTPError(err)
	if httperr.Meta == nil {
		return ""
	}
	code, _ := httperr.Meta[codeMetaKey].(string)
	return code
}
