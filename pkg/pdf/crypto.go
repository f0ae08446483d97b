package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
)

// cryptMethod is how a class of data (strings or streams) is encrypted
type cryptMethod int

const (
	cryptNone cryptMethod = iota
	cryptRC4
	cryptAESV2
	cryptAESV3
)

// passwordPadding pads or replaces user passwords for revisions 2 to 4
var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// securityHandler is the standard security handler: RC4 and AES-128
// (revisions 2 to 4) and AES-256 (revisions 5 and 6).
type securityHandler struct {
	V, R   int
	Length int // file key length in bytes
	P      int32
	O, U   []byte
	OE, UE []byte
	ID     []byte

	EncryptMetadata bool
	strMethod       cryptMethod
	stmMethod       cryptMethod

	key []byte
}

// newSecurityHandler reads an /Encrypt dictionary and authenticates
// password, first as the user password and then as the owner password.
func newSecurityHandler(enc Dictionary, id []byte, password string) (*securityHandler, error) {
	if filter, _ := enc.GetName("Filter"); filter != "Standard" {
		return nil, fmt.Errorf("%w: security handler %q", ErrEncrypted, filter)
	}

	s := &securityHandler{ID: id, EncryptMetadata: true, Length: 5}
	v, _ := enc.GetInt("V")
	r, _ := enc.GetInt("R")
	p, _ := enc.GetInt("P")
	s.V, s.R, s.P = int(v), int(r), int32(p)
	if bits, ok := enc.GetInt("Length"); ok && bits >= 40 && bits <= 256 {
		s.Length = int(bits / 8)
	}
	if b, ok := enc.Get("EncryptMetadata").(Boolean); ok {
		s.EncryptMetadata = bool(b)
	}
	s.O = stringBytes(enc.Get("O"))
	s.U = stringBytes(enc.Get("U"))
	s.OE = stringBytes(enc.Get("OE"))
	s.UE = stringBytes(enc.Get("UE"))

	switch s.V {
	case 1, 2:
		s.strMethod, s.stmMethod = cryptRC4, cryptRC4
	case 4, 5:
		cf, _ := enc.GetDict("CF")
		var err error
		if s.strMethod, err = cryptFilter(cf, enc.Get("StrF")); err != nil {
			return nil, err
		}
		if s.stmMethod, err = cryptFilter(cf, enc.Get("StmF")); err != nil {
			return nil, err
		}
		if s.V == 5 {
			s.Length = 32
		} else if s.strMethod == cryptAESV2 || s.stmMethod == cryptAESV2 {
			s.Length = 16
		}
	default:
		return nil, fmt.Errorf("%w: unsupported /V %d", ErrEncrypted, s.V)
	}

	switch {
	case s.R >= 2 && s.R <= 4:
		if len(s.O) < 32 || len(s.U) < 32 {
			return nil, fmt.Errorf("%w: malformed /O or /U", ErrEncrypted)
		}
	case s.R == 5 || s.R == 6:
		if len(s.O) < 48 || len(s.U) < 48 || len(s.OE) < 32 || len(s.UE) < 32 {
			return nil, fmt.Errorf("%w: malformed /O, /U, /OE or /UE", ErrEncrypted)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported /R %d", ErrEncrypted, s.R)
	}

	if !s.authenticate([]byte(password)) {
		return nil, fmt.Errorf("%w: incorrect password", ErrEncrypted)
	}
	return s, nil
}

func stringBytes(obj Object) []byte {
	s, _ := obj.(String)
	return s.Value
}

// cryptFilter maps a /StrF or /StmF name to its method. /Identity and
// absent names leave the data in the clear.
func cryptFilter(cf Dictionary, name Object) (cryptMethod, error) {
	n, _ := name.(Name)
	if n == "" || n == "Identity" {
		return cryptNone, nil
	}
	dict, ok := cf.GetDict(string(n))
	if !ok {
		return 0, fmt.Errorf("%w: crypt filter %q not defined", ErrEncrypted, n)
	}
	switch cfm, _ := dict.GetName("CFM"); cfm {
	case "", "None":
		return cryptNone, nil
	case "V2":
		return cryptRC4, nil
	case "AESV2":
		return cryptAESV2, nil
	case "AESV3":
		return cryptAESV3, nil
	default:
		return 0, fmt.Errorf("%w: crypt method %q", ErrEncrypted, cfm)
	}
}

func (s *securityHandler) authenticate(password []byte) bool {
	if s.R >= 5 {
		if len(password) > 127 {
			password = password[:127]
		}
		return s.userAES256(password) || s.ownerAES256(password)
	}
	if key := s.fileKey(password); s.checkUserKey(key) {
		s.key = key
		return true
	}
	if key := s.fileKey(s.ownerToUser(password)); s.checkUserKey(key) {
		s.key = key
		return true
	}
	return false
}

func padPassword(password []byte) []byte {
	out := make([]byte, 0, 32)
	out = append(out, password[:min(len(password), 32)]...)
	return append(out, passwordPadding[:32-len(out)]...)
}

// fileKey derives the file encryption key from a user password
func (s *securityHandler) fileKey(password []byte) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(s.O[:32])
	binary.Write(h, binary.LittleEndian, uint32(s.P))
	h.Write(s.ID)
	if s.R >= 4 && !s.EncryptMetadata {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if s.R >= 3 {
		for n := 0; n < 50; n++ {
			sum := md5.Sum(key[:s.Length])
			key = sum[:]
		}
	}
	return key[:s.Length]
}

// checkUserKey recomputes /U from key and compares it
func (s *securityHandler) checkUserKey(key []byte) bool {
	if s.R == 2 {
		return bytes.Equal(rc4Crypt(key, passwordPadding), s.U[:32])
	}
	h := md5.New()
	h.Write(passwordPadding)
	h.Write(s.ID)
	data := h.Sum(nil)
	for i := 0; i < 20; i++ {
		data = rc4Crypt(xorKey(key, byte(i)), data)
	}
	return bytes.Equal(data, s.U[:16])
}

// ownerToUser recovers the user password stored in /O
func (s *securityHandler) ownerToUser(owner []byte) []byte {
	sum := md5.Sum(padPassword(owner))
	key := sum[:]
	if s.R >= 3 {
		for n := 0; n < 50; n++ {
			sum = md5.Sum(key)
			key = sum[:]
		}
	}
	key = key[:s.Length]

	if s.R == 2 {
		return rc4Crypt(key, s.O[:32])
	}
	data := s.O[:32]
	for i := 19; i >= 0; i-- {
		data = rc4Crypt(xorKey(key, byte(i)), data)
	}
	return data
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

func rc4Crypt(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func (s *securityHandler) userAES256(password []byte) bool {
	if !bytes.Equal(s.hash(password, s.U[32:40], nil), s.U[:32]) {
		return false
	}
	s.key = aesUnwrap(s.hash(password, s.U[40:48], nil), s.UE[:32])
	return s.key != nil
}

func (s *securityHandler) ownerAES256(password []byte) bool {
	udata := s.U[:48]
	if !bytes.Equal(s.hash(password, s.O[32:40], udata), s.O[:32]) {
		return false
	}
	s.key = aesUnwrap(s.hash(password, s.O[40:48], udata), s.OE[:32])
	return s.key != nil
}

// hash is the revision 5 SHA-256 check, or the iterated revision 6 hash
func (s *securityHandler) hash(password, salt, udata []byte) []byte {
	sum := sha256.Sum256(concat(password, salt, udata))
	k := sum[:]
	if s.R == 5 {
		return k
	}

	for round := 0; ; round++ {
		k1 := bytes.Repeat(concat(password, k, udata), 64)
		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e := make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		// the first 16 bytes as a big-endian number, modulo 3
		mod := 0
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			h := sha256.Sum256(e)
			k = h[:]
		case 1:
			h := sha512.Sum384(e)
			k = h[:]
		default:
			h := sha512.Sum512(e)
			k = h[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-32 {
			return k[:32]
		}
	}
}

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

// aesUnwrap decrypts /UE or /OE: AES-256, zero IV, no padding
func aesUnwrap(key, data []byte) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, aes.BlockSize)).CryptBlocks(out, data)
	return out
}

// objectKey derives the key for object num. AES-256 uses the file key.
func (s *securityHandler) objectKey(m cryptMethod, num, gen int) []byte {
	if m == cryptAESV3 {
		return s.key
	}
	h := md5.New()
	h.Write(s.key)
	h.Write([]byte{byte(num), byte(num >> 8), byte(num >> 16), byte(gen), byte(gen >> 8)})
	if m == cryptAESV2 {
		h.Write([]byte("sAlT"))
	}
	return h.Sum(nil)[:min(len(s.key)+5, 16)]
}

var errCipherText = errors.New("AES data is not a whole number of blocks")

func (s *securityHandler) decrypt(m cryptMethod, num, gen int, data []byte) ([]byte, error) {
	key := s.objectKey(m, num, gen)
	switch m {
	case cryptRC4:
		return rc4Crypt(key, data), nil
	case cryptAESV2, cryptAESV3:
		if len(data) == 0 {
			return data, nil
		}
		if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
			return nil, errCipherText
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data)-aes.BlockSize)
		cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
		if pad := int(out[len(out)-1]); pad >= 1 && pad <= aes.BlockSize {
			out = out[:len(out)-pad]
		}
		return out, nil
	}
	return data, nil
}

// encrypt is the inverse of decrypt. The AES IV is derived from the key
// and the data so equal input encrypts to equal bytes.
func (s *securityHandler) encrypt(m cryptMethod, num, gen int, data []byte) ([]byte, error) {
	key := s.objectKey(m, num, gen)
	switch m {
	case cryptRC4:
		return rc4Crypt(key, data), nil
	case cryptAESV2, cryptAESV3:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		pad := aes.BlockSize - len(data)%aes.BlockSize
		plain := append(bytes.Clone(data), bytes.Repeat([]byte{byte(pad)}, pad)...)
		iv := md5.Sum(concat(key, data))
		out := make([]byte, aes.BlockSize+len(plain))
		copy(out, iv[:])
		cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out[aes.BlockSize:], plain)
		return out, nil
	}
	return data, nil
}

type cryptFunc func(m cryptMethod, num, gen int, data []byte) ([]byte, error)

func (s *securityHandler) decryptObject(obj Object, num, gen int) (Object, error) {
	return s.transform(obj, num, gen, s.decrypt)
}

func (s *securityHandler) encryptObject(obj Object, num, gen int) (Object, error) {
	return s.transform(obj, num, gen, s.encrypt)
}

// transform applies crypt to every string and stream body inside obj,
// returning a copy.
func (s *securityHandler) transform(obj Object, num, gen int, crypt cryptFunc) (Object, error) {
	switch v := obj.(type) {
	case String:
		data, err := crypt(s.strMethod, num, gen, v.Value)
		if err != nil {
			return nil, err
		}
		return String{Value: data, IsHex: v.IsHex}, nil
	case Array:
		out := make(Array, len(v))
		for i, item := range v {
			var err error
			if out[i], err = s.transform(item, num, gen, crypt); err != nil {
				return nil, err
			}
		}
		return out, nil
	case Dictionary:
		out := make(Dictionary, len(v))
		for k, item := range v {
			var err error
			if out[k], err = s.transform(item, num, gen, crypt); err != nil {
				return nil, err
			}
		}
		return out, nil
	case Stream:
		dict, err := s.transform(v.Dictionary, num, gen, crypt)
		if err != nil {
			return nil, err
		}
		data := v.Data
		if s.streamEncrypted(v.Dictionary) {
			if data, err = crypt(s.stmMethod, num, gen, data); err != nil {
				return nil, fmt.Errorf("stream: %w", err)
			}
		}
		return Stream{Dictionary: dict.(Dictionary), Data: data}, nil
	}
	return obj, nil
}

// streamEncrypted reports whether a stream's body goes through the
// document's stream method. Cross-reference streams are always clear.
func (s *securityHandler) streamEncrypted(dict Dictionary) bool {
	if s.stmMethod == cryptNone {
		return false
	}
	switch typ, _ := dict.GetName("Type"); typ {
	case "XRef":
		return false
	case "Metadata":
		return s.EncryptMetadata
	}
	// a stream-level /Crypt filter selects its own method; only
	// /Identity is honoured
	if f, ok := dict.GetName("Filter"); ok && f == "Crypt" {
		return false
	}
	if fs, ok := dict.GetArray("Filter"); ok && len(fs) > 0 && fs[0] == Name("Crypt") {
		return false
	}
	return true
}

// setupSecurity installs the security handler named by the trailer's
// /Encrypt entry. The dictionary itself is read before the handler is
// active, so its strings stay as stored.
func (d *Document) setupSecurity(enc Object, password string) error {
	if ref, ok := enc.(Reference); ok {
		d.encryptNum = ref.ObjectNumber
	}
	dict, ok := d.resolveDict(enc)
	if !ok {
		return fmt.Errorf("%w: /Encrypt is not a dictionary", ErrEncrypted)
	}
	var id []byte
	if ids, ok := d.Trailer.GetArray("ID"); ok && len(ids) > 0 {
		id = stringBytes(d.resolve(ids[0]))
	}
	sh, err := newSecurityHandler(dict, id, password)
	if err != nil {
		return err
	}
	d.security = sh
	return nil
}

// Encrypted reports whether the document uses the standard security
// handler. Its strings and streams are decrypted as they are read.
func (d *Document) Encrypted() bool {
	return d.security != nil
}
