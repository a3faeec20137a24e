package queryable

import (
	"fmt"

	"github.com/asaidimu/go-specs/core/expr"
)

// MarkerScope is the declaring scope of every operator in this package. A call
// is only ever classified as a marker when it carries this scope.
const MarkerScope = "queryable"

// Marker identifies a backend-neutral include placeholder.
type Marker uint8

const (
	MarkerNone Marker = iota
	MarkerInclude
	MarkerThenIncludeAfterCollection
	MarkerThenIncludeAfterReference
)

func (m Marker) String() string {
	switch m {
	case MarkerInclude:
		return "Include"
	case MarkerThenIncludeAfterCollection:
		return "ThenInclude(after collection)"
	case MarkerThenIncludeAfterReference:
		return "ThenInclude(after reference)"
	default:
		return "None"
	}
}

// markerRegistry maps a marker name to the parameter forms it is declared
// with. It is fixed at compile time.
var markerRegistry = map[string]map[expr.Form]Marker{
	includeMethod.Name: {
		expr.FormSequence: MarkerInclude,
	},
	thenIncludeAfterRef.Name: {
		expr.FormIncludedCollection: MarkerThenIncludeAfterCollection,
		expr.FormIncludedReference:  MarkerThenIncludeAfterReference,
	},
}

// MarkerShapeError reports a call that carries a registered marker name but a
// form the registry does not know. It means the operators and the registry
// have drifted apart.
type MarkerShapeError struct {
	Method expr.Method
}

func (e *MarkerShapeError) Error() string {
	return fmt.Sprintf("marker %s has unregistered form %s", e.Method, e.Method.Form)
}

// Classify decides which marker, if any, m denotes. It looks only at the
// method's scope, name and form.
func Classify(m expr.Method) (Marker, error) {
	if m.Scope != MarkerScope {
		return MarkerNone, nil
	}
	forms, ok := markerRegistry[m.Name]
	if !ok {
		return MarkerNone, nil
	}
	marker, ok := forms[m.Form]
	if !ok {
		return MarkerNone, &MarkerShapeError{Method: m}
	}
	return marker, nil
}

// IsMarker reports whether m is one of the registered markers.
func IsMarker(m expr.Method) bool {
	marker, err := Classify(m)
	return err != nil || marker != MarkerNone
}

// CheckNoMarkers returns ErrUnhandledMarker when e still contains a marker call.
func CheckNoMarkers(e expr.Expr) error {
	var found *expr.Call
	expr.Walk(e, func(n expr.Expr) bool {
		if found != nil {
			return false
		}
		if c, ok := n.(*expr.Call); ok && IsMarker(c.Method) {
			found = c
			return false
		}
		return true
	})
	if found != nil {
		return fmt.Errorf("%w: %s", ErrUnhandledMarker, found.Method)
	}
	return nil
}
