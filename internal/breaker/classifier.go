package breaker

import (
	"context"
	"errors"
)

// Classifier maps an error to a fault type. The second return value reports
// whether the error counts against the breaker at all; excluded errors
// (caller cancellation, non-network failures) leave the breaker untouched.
// Classification never fails: unrecognized errors come back as FaultUnknown.
type Classifier interface {
	Classify(err error) (FaultType, bool)
}

// ClassifierFunc adapts a plain function to the Classifier interface.
type ClassifierFunc func(err error) (FaultType, bool)

// Classify implements Classifier.
func (f ClassifierFunc) Classify(err error) (FaultType, bool) {
	return f(err)
}

// classifyCommon handles the cases shared by every adapter: exclusions and
// the tagged Fault shape extraction. ok=false in the third value means the
// adapter should apply its own per-resource rules to the fault.
func classifyCommon(err error) (FaultType, bool, *Fault) {
	if err == nil {
		return FaultUnknown, false, nil
	}
	// Caller-side cancellation is not a service fault.
	if errors.Is(err, context.Canceled) {
		return FaultUnknown, false, nil
	}

	var fault *Fault
	if errors.As(err, &fault) {
		return FaultUnknown, true, fault
	}
	// Deadline without a tagged fault: still a timeout against the service.
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultTransient, true, nil
	}
	// Untagged errors default to unknown and count (prefer eventually
	// opening over never reacting).
	return FaultUnknown, true, nil
}

// LLMClassifier classifies faults from LLM completion and embedding calls.
// Rate limits and overload responses are model capacity problems; server
// errors and network failures are transient; client errors are permanent.
func LLMClassifier() Classifier {
	return ClassifierFunc(func(err error) (FaultType, bool) {
		ft, counts, fault := classifyCommon(err)
		if !counts || fault == nil {
			return ft, counts
		}
		switch {
		case fault.StatusCode == 429 || fault.StatusCode == 529:
			return FaultModelSpecific, true
		case fault.Timeout || fault.ConnectionRefused:
			return FaultTransient, true
		case fault.StatusCode >= 500:
			return FaultTransient, true
		case fault.StatusCode >= 400:
			return FaultPermanent, true
		default:
			return FaultUnknown, true
		}
	})
}

// DatastoreClassifier classifies faults from the primary datastore.
// Connectivity problems are transient; constraint and validation failures
// are permanent.
func DatastoreClassifier() Classifier {
	return ClassifierFunc(func(err error) (FaultType, bool) {
		ft, counts, fault := classifyCommon(err)
		if !counts || fault == nil {
			return ft, counts
		}
		switch {
		case fault.Timeout || fault.ConnectionRefused:
			return FaultTransient, true
		case fault.StatusCode >= 500:
			return FaultTransient, true
		case fault.StatusCode >= 400:
			return FaultPermanent, true
		default:
			return FaultUnknown, true
		}
	})
}

// CacheClassifier classifies faults from the cache store. A cache is always
// worth retrying, so every counted failure is transient.
func CacheClassifier() Classifier {
	return ClassifierFunc(func(err error) (FaultType, bool) {
		_, counts, _ := classifyCommon(err)
		if !counts {
			return FaultUnknown, false
		}
		return FaultTransient, true
	})
}

// SearchClassifier classifies faults from web search providers.
func SearchClassifier() Classifier {
	return ClassifierFunc(func(err error) (FaultType, bool) {
		ft, counts, fault := classifyCommon(err)
		if !counts || fault == nil {
			return ft, counts
		}
		switch {
		case fault.StatusCode == 429:
			return FaultModelSpecific, true
		case fault.Timeout || fault.ConnectionRefused || fault.StatusCode >= 500:
			return FaultTransient, true
		case fault.StatusCode >= 400:
			return FaultPermanent, true
		default:
			return FaultUnknown, true
		}
	})
}

// DefaultClassifier counts every non-excluded error as unknown.
func DefaultClassifier() Classifier {
	return ClassifierFunc(func(err error) (FaultType, bool) {
		ft, counts, fault := classifyCommon(err)
		if !counts {
			return ft, counts
		}
		if fault != nil {
			return FaultUnknown, true
		}
		return ft, true
	})
}
