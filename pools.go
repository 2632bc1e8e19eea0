package recstore

import "sync"

// keyBytesPool holds scratch buffers for lookup keys. Bolt requires keys
// passed to Put to stay valid until the transaction ends, so pooled buffers
// are only ever used for Get, Delete and Seek.
var keyBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 8)
	},
}

func acquireKey(id int64) []byte {
	return putKey(keyBytesPool.Get().([]byte)[:8], id)
}

func releaseKeyBytes(b []byte) {
	keyBytesPool.Put(b[:0])
}

// encodeBytesPool holds scratch buffers for encoding record data before it
// is copied into a freshly allocated value.
var encodeBytesPool = &sync.Pool{
	New: func() any {
		return make([]byte, 0, 4096)
	},
}
