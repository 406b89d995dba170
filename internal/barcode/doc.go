// Package barcode wraps the symbol decoder behind a small pluggable interface.
//
// Backend decodes a single image. Engine builds on a Backend to decode a
// live frame source continuously, reporting every attempt to a callback
// until Reset is called. The default backend is gozxing; the no-symbol
// condition is always reported as ErrNotFound regardless of backend.
package barcode
