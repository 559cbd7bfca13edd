// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package client

import (
	"context"

	"github.com/noema-ai/noema/pkg/protocol"
	"github.com/noema-ai/noema/pkg/worker"
)

// Local connects to a runtime in the same process over an in-memory
// transport. The full protocol runs, handshake included, so local and
// remote sessions behave identically; only the network is skipped.
func Local(ctx context.Context, rt *worker.Runtime, opts ...Option) (*Client, error) {
	clientEnd, serverEnd := protocol.NewPipe()
	go rt.ServeTransport(serverEnd)
	return connect(ctx, clientEnd, opts...)
}
