// Package buffer provides a thread-safe growable FIFO used to hand values
// from a producer goroutine to a single consumer.
//
// Writers never block. Readers block until data arrives or the buffer is
// closed. CloseWrite lets the consumer drain what is left and then observe
// the end of stream; CloseWithError drops pending data and unblocks both
// sides immediately.
//
//	pipe := buffer.N[string](16)
//	go func() {
//		defer pipe.CloseWrite()
//		pipe.Add("hello")
//	}()
//	for s := range pipe.All() {
//		fmt.Println(s)
//	}
package buffer
