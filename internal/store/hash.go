package store

import (
	"crypto/sha256"
	"fmt"
)

// ComputeSignatureHash hashes a symbol's semantic identity: name, kind,
// type annotation, and export status. Location changes do NOT affect the
// hash, so moving a declaration within its file leaves its signature
// intact and out of the blast radius.
func ComputeSignatureHash(name, kind, typeExpr string, exported bool) string {
	h := sha256.New()
	fmt.Fprintf(h, "name:%s\n", name)
	fmt.Fprintf(h, "kind:%s\n", kind)
	fmt.Fprintf(h, "type:%s\n", typeExpr)
	fmt.Fprintf(h, "exported:%v\n", exported)
	return fmt.Sprintf("%x", h.Sum(nil))
}
