package response

import "sync"

// responsePool reuses Response objects to reduce allocations on hot
// request paths.
var responsePool = sync.Pool{
	New: func() interface{} {
		return new(Response)
	},
}

// Acquire returns a Response from the pool. Callers must Release it
// when done.
func Acquire() *Response {
	return responsePool.Get().(*Response)
}

// Release resets the Response and returns it to the pool.
// Releasing nil is a no-op. The Response must not be used afterwards.
func Release(r *Response) {
	if r == nil {
		return
	}
	r.Code = 0
	r.HTTPCode = 0
	r.Message = ""
	r.Data = nil
	responsePool.Put(r)
}
