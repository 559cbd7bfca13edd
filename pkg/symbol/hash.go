// Copyright (C) 2026 Noema AI (oss@noema.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package symbol

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText computes the content hash of a canonical text payload.
//
// The hash is SHA256 rendered as 64 lowercase hexadecimal characters.
// It is the stable digest used as a cache key component; changing the
// algorithm invalidates every shared cache, so treat it as frozen.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
