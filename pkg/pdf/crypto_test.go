package pdf

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
)

// lockSpec describes how encryptedPDF protects its fixture
type lockSpec struct {
	r, n        int // revision and key length in bytes
	aes         bool
	user, owner string
}

var fixtureID = []byte("0123456789abcdef")

const fixtureP = -44

func padded(pw string) []byte {
	return append([]byte(pw), passwordPadding[:32-len(pw)]...)
}

func rc4Bytes(key, data []byte) []byte {
	c, _ := rc4.NewCipher(key)
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func xorBytes(key []byte, b byte) []byte {
	out := bytes.Clone(key)
	for i := range out {
		out[i] ^= b
	}
	return out
}

// encryptedPDF writes a one page document with an encrypted content
// stream, an encrypted /Info title and a standard security handler.
func encryptedPDF(t *testing.T, spec lockSpec, content, title string) []byte {
	t.Helper()

	// /O from the owner password
	sum := md5.Sum(padded(spec.owner))
	okey := sum[:]
	if spec.r >= 3 {
		for n := 0; n < 50; n++ {
			sum = md5.Sum(okey)
			okey = sum[:]
		}
	}
	okey = okey[:spec.n]
	o := rc4Bytes(okey, padded(spec.user))
	if spec.r >= 3 {
		for i := 1; i <= 19; i++ {
			o = rc4Bytes(xorBytes(okey, byte(i)), o)
		}
	}

	// file key from the user password
	h := md5.New()
	h.Write(padded(spec.user))
	h.Write(o)
	binary.Write(h, binary.LittleEndian, int32(fixtureP))
	h.Write(fixtureID)
	key := h.Sum(nil)
	if spec.r >= 3 {
		for n := 0; n < 50; n++ {
			sum = md5.Sum(key[:spec.n])
			key = sum[:]
		}
	}
	key = key[:spec.n]

	var u []byte
	if spec.r == 2 {
		u = rc4Bytes(key, passwordPadding)
	} else {
		sum = md5.Sum(append(bytes.Clone(passwordPadding), fixtureID...))
		u = sum[:]
		for i := 0; i <= 19; i++ {
			u = rc4Bytes(xorBytes(key, byte(i)), u)
		}
		u = append(u, make([]byte, 16)...)
	}

	seal := func(num int, data []byte) []byte {
		h := md5.New()
		h.Write(key)
		h.Write([]byte{byte(num), 0, 0, 0, 0})
		if spec.aes {
			h.Write([]byte("sAlT"))
		}
		okey := h.Sum(nil)[:min(spec.n+5, 16)]
		if !spec.aes {
			return rc4Bytes(okey, data)
		}
		block, _ := aes.NewCipher(okey)
		pad := aes.BlockSize - len(data)%aes.BlockSize
		plain := append(bytes.Clone(data), bytes.Repeat([]byte{byte(pad)}, pad)...)
		out := make([]byte, aes.BlockSize+len(plain))
		copy(out, "fixed-iv-16bytes")
		cipher.NewCBCEncrypter(block, out[:aes.BlockSize]).CryptBlocks(out[aes.BlockSize:], plain)
		return out
	}

	var enc string
	switch spec.r {
	case 2:
		enc = "/V 1 /R 2"
	case 3:
		enc = fmt.Sprintf("/V 2 /R 3 /Length %d", spec.n*8)
	case 4:
		enc = "/V 4 /R 4 /Length 128 /CF <</StdCF <</CFM /AESV2 /AuthEvent /DocOpen /Length 16>>>> /StmF /StdCF /StrF /StdCF"
	}

	return rawPDF("", []string{
		"<</Type /Catalog /Pages 2 0 R>>",
		"<</Type /Pages /Kids [3 0 R] /Count 1>>",
		"<</Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources <</Font <</F1 5 0 R>>>> /Contents 4 0 R>>",
		streamObject("", string(seal(4, []byte(content)))),
		"<</Type /Font /Subtype /Type1 /BaseFont /Courier>>",
		fmt.Sprintf("<</Filter /Standard %s /P %d /O <%X> /U <%X>>>", enc, fixtureP, o, u),
		fmt.Sprintf("<</Title <%X>>>", seal(7, []byte(title))),
	}, fmt.Sprintf(" /Encrypt 6 0 R /Info 7 0 R /ID [<%X> <%X>]", fixtureID, fixtureID))
}

func TestEncryptedDocuments(t *testing.T) {
	tests := []struct {
		name string
		spec lockSpec
	}{
		{"rc4 40-bit", lockSpec{r: 2, n: 5, owner: "owner"}},
		{"rc4 128-bit", lockSpec{r: 3, n: 16, owner: "owner"}},
		{"aes 128-bit", lockSpec{r: 4, n: 16, aes: true, owner: "owner"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := encryptedPDF(t, tt.spec, "BT /F1 12 Tf 72 700 Td (Secret) Tj ET", "Quarterly report")
			doc, err := NewDocument(data)
			if err != nil {
				t.Fatalf("NewDocument failed: %v", err)
			}
			if !doc.Encrypted() {
				t.Error("Expected Encrypted to report true")
			}
			if got := textOf(charsOf(t, doc.Pages[0])); got != "Secret" {
				t.Errorf("Expected Secret, got %q", got)
			}
			info, _ := doc.resolveDict(doc.Trailer.Get("Info"))
			if title, _ := info.Get("Title").(String); title.Text() != "Quarterly report" {
				t.Errorf("Expected decrypted title, got %q", title.Value)
			}

			// the owner password opens it too
			if _, err := NewDocumentWithPassword(data, "owner"); err != nil {
				t.Errorf("Expected owner password to open, got %v", err)
			}
			if _, err := NewDocumentWithPassword(data, "wrong"); !errors.Is(err, ErrEncrypted) {
				t.Errorf("Expected ErrEncrypted for a wrong password, got %v", err)
			}
		})
	}
}

func TestEncryptedUserPassword(t *testing.T) {
	data := encryptedPDF(t, lockSpec{r: 3, n: 16, user: "secret", owner: "owner"},
		"BT /F1 12 Tf 72 700 Td (Hidden) Tj ET", "")

	if _, err := NewDocument(data); !errors.Is(err, ErrEncrypted) {
		t.Fatalf("Expected ErrEncrypted without the password, got %v", err)
	}
	doc, err := NewDocumentWithPassword(data, "secret")
	if err != nil {
		t.Fatalf("NewDocumentWithPassword failed: %v", err)
	}
	if got := textOf(charsOf(t, doc.Pages[0])); got != "Hidden" {
		t.Errorf("Expected Hidden, got %q", got)
	}
}

func TestEncryptedIncrementalUpdate(t *testing.T) {
	for _, spec := range []lockSpec{{r: 3, n: 16}, {r: 4, n: 16, aes: true}} {
		data := encryptedPDF(t, spec, "BT /F1 12 Tf 72 700 Td (Secret) Tj ET", "")
		doc, err := NewDocument(data)
		if err != nil {
			t.Fatalf("NewDocument failed: %v", err)
		}

		w := NewIncrementalWriter(doc)
		draw := []byte("BT /F1 12 Tf 72 600 Td (Added) Tj ET")
		if err := w.AppendPageContent(doc.Pages[0], draw, ResourceSet{}); err != nil {
			t.Fatal(err)
		}
		out, err := w.Bytes()
		if err != nil {
			t.Fatalf("Bytes failed: %v", err)
		}
		update := out[len(data):]
		if !bytes.Contains(update, []byte("/Encrypt 6 0 R")) {
			t.Errorf("Expected the update trailer to keep /Encrypt, got %q", update)
		}
		if bytes.Contains(update, []byte("(Added)")) {
			t.Error("Expected appended content to be encrypted")
		}

		updated, err := NewDocument(out)
		if err != nil {
			t.Fatalf("reopening update failed: %v", err)
		}
		if got := textOf(charsOf(t, updated.Pages[0])); got != "SecretAdded" {
			t.Errorf("Expected SecretAdded, got %q", got)
		}
	}
}

func TestUnsupportedSecurityHandlers(t *testing.T) {
	tests := []struct {
		name string
		enc  string
	}{
		{"no handler fields", "<</Filter /Standard>>"},
		{"public key", "<</Filter /Adobe.PubSec /V 4 /R 4>>"},
		{"unknown crypt filter", "<</Filter /Standard /V 4 /R 4 /StmF /Missing /O <00> /U <00>>>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := rawPDF("", []string{
				"<</Type /Catalog /Pages 2 0 R>>",
				"<</Type /Pages /Kids [] /Count 0>>",
			}, " /Encrypt "+tt.enc)
			if _, err := NewDocument(data); !errors.Is(err, ErrEncrypted) {
				t.Errorf("Expected ErrEncrypted, got %v", err)
			}
		})
	}
}
