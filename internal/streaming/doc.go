/*
Package streaming writes newline-delimited JSON progress streams to HTTP
clients.

# Overview

Thumbnail generation for a large folder can take minutes, so the server runs
without a global write timeout. EventStream bounds each individual line
instead: a client that stops reading is cut off after WriteTimeout, while a
slow render between two lines is not penalized. Every line is flushed as soon
as it is written.

# Usage

	func (h *Handlers) StreamThumbnails(w http.ResponseWriter, r *http.Request) {
		stream := streaming.NewEventStream(r.Context(), w, streaming.DefaultConfig())
		defer stream.Close()

		for res := range results {
			if err := stream.Send(toEvent(res)); err != nil {
				return
			}
		}
	}

Send returns ErrClientGone once the request context is canceled and
ErrWriteTimeout when a line could not be delivered in time.
*/
package streaming
