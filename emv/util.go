package emv

import "encoding/hex"

func bytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}
