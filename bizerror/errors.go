package bizerror

import (
	"errors"
	"flowchain/misc"
	"net/http"
	"strings"
)

var ErrUnauthenticated = errors.New("unauthenticated")
var ErrForbidden = errors.New("forbidden")
var ErrNotFound = errors.New("record not found")

var ErrStepNotActive = errors.New("step is not active")
var ErrInstanceTerminal = errors.New("instance already ended")
var ErrInstanceExisted = errors.New("asset already has an active instance of this flow chain")
var ErrStuckInstance = errors.New("no transition matched, instance blocked")
var ErrMaxRetriesExceeded = errors.New("stage visit limit exceeded")
var ErrChainReferenced = errors.New("flow chain is referenced by instances")

// ErrInvalidDefinition is raised at publish time only. A definition that
// passed publish validation never fails structurally at runtime.
type ErrInvalidDefinition struct {
	Problems []string
}

func (e *ErrInvalidDefinition) Error() string {
	return "invalid flow chain definition: " + strings.Join(e.Problems, "; ")
}

func (e *ErrInvalidDefinition) Respond() *misc.BizErrorDetail {
	return &misc.BizErrorDetail{Status: http.StatusBadRequest, Code: "flowchain.invalid_definition",
		Message: "invalid flow chain definition", Data: e.Problems}
}
