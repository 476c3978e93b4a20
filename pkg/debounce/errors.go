package debounce

import "errors"

// ErrStoreClosed is returned when using a closed store.
var ErrStoreClosed = errors.New("debounce store is closed")
