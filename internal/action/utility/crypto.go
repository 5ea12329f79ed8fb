package utility

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"hash"

	"golang.org/x/crypto/sha3"

	"github.com/tombee/chord/pkg/action"
)

var digests = map[string]func() hash.Hash{
	"md5":      md5.New,
	"sha1":     sha1.New,
	"sha256":   sha256.New,
	"sha3_256": sha3.New256,
	"sha3_512": sha3.New512,
}

// digest hashes config "from" with the algorithm named by "by". Digests are
// lower-case hex. "base64" and "base64_decode" encode and decode instead.
func digest(_ context.Context, arg action.RunArg) (interface{}, error) {
	raw, err := renderedConfig(KindCrypto, arg)
	if err != nil {
		return nil, err
	}
	cfg := action.Config(raw)

	by := cfg.String("by", "")
	if by == "" {
		return nil, missing(KindCrypto, "by")
	}
	if _, ok := cfg["from"]; !ok {
		return nil, missing(KindCrypto, "from")
	}
	from := cfg.String("from", "")

	switch by {
	case "base64":
		return base64.StdEncoding.EncodeToString([]byte(from)), nil
	case "base64_decode":
		b, err := base64.StdEncoding.DecodeString(from)
		if err != nil {
			return nil, invalid(KindCrypto, "invalid base64 input: %v", err)
		}
		return string(b), nil
	}

	newHash, ok := digests[by]
	if !ok {
		return nil, unsupported(KindCrypto, by)
	}
	h := newHash()
	h.Write([]byte(from))
	return hex.EncodeToString(h.Sum(nil)), nil
}
