package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// Fingerprint 计算缓存键：SHA256(text, lang_in, lang_out, identity, options)。
// 每个字段带长度前缀，避免 ("ab","c") 与 ("a","bc") 冲突；options 按 key 排序。
func Fingerprint(text, langIn, langOut, identity string, options map[string]string) string {
	h := sha256.New()
	writeField(h, text)
	writeField(h, langIn)
	writeField(h, langOut)
	writeField(h, identity)

	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(h, k)
		writeField(h, options[k])
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
