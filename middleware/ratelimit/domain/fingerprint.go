package domain

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyPart é um componente extra da identidade de uma requisição, produzido por
// um provider configurado (cookie, header, parâmetro, sessão).
//
// Present=false representa valor ausente; ausente e string vazia são distintos.
type KeyPart struct {
	Name    string
	Value   string
	Present bool
}

// Fingerprint é a identidade imutável de um cliente, usada como chave do bucket.
//
// Igualdade é estrutural sobre todos os campos (via Key) e o hash é calculado
// uma única vez na construção.
type Fingerprint struct {
	remoteAddr   string
	remotePort   int
	userAgent    string
	hasUserAgent bool
	parts        []KeyPart

	key  string
	hash uint64
}

// NewFingerprint constrói um Fingerprint. remotePort <= 0 significa "porta não
// considerada"; userAgent nil significa header ausente.
func NewFingerprint(remoteAddr string, remotePort int, userAgent *string, parts ...KeyPart) Fingerprint {
	if remotePort < 0 {
		remotePort = 0
	}
	fp := Fingerprint{
		remoteAddr: remoteAddr,
		remotePort: remotePort,
	}
	if userAgent != nil {
		fp.userAgent = *userAgent
		fp.hasUserAgent = true
	}
	if len(parts) > 0 {
		fp.parts = make([]KeyPart, len(parts))
		copy(fp.parts, parts)
	}
	fp.key = fp.encode()
	fp.hash = xxhash.Sum64String(fp.key)
	return fp
}

// encode gera a forma canônica: cada campo com prefixo de tamanho, assim
// nenhum valor consegue "vazar" para o campo seguinte.
func (f Fingerprint) encode() string {
	var b strings.Builder
	b.Grow(len(f.remoteAddr) + len(f.userAgent) + 16*len(f.parts) + 32)

	writeField(&b, 'a', f.remoteAddr, true)
	b.WriteString("p")
	b.WriteString(strconv.Itoa(f.remotePort))
	b.WriteByte('|')
	writeField(&b, 'u', f.userAgent, f.hasUserAgent)
	for _, p := range f.parts {
		writeField(&b, 'n', p.Name, true)
		writeField(&b, 'v', p.Value, p.Present)
	}
	return b.String()
}

func writeField(b *strings.Builder, tag byte, v string, present bool) {
	b.WriteByte(tag)
	if !present {
		b.WriteString("-|")
		return
	}
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
	b.WriteByte('|')
}

func (f Fingerprint) RemoteAddr() string { return f.remoteAddr }
func (f Fingerprint) RemotePort() int    { return f.remotePort }

// UserAgent retorna o User-Agent e se ele estava presente.
func (f Fingerprint) UserAgent() (string, bool) { return f.userAgent, f.hasUserAgent }

// Parts retorna uma cópia das partes extras, na ordem configurada.
func (f Fingerprint) Parts() []KeyPart {
	if len(f.parts) == 0 {
		return nil
	}
	out := make([]KeyPart, len(f.parts))
	copy(out, f.parts)
	return out
}

// Key é a codificação canônica; dois fingerprints são iguais sse Key for igual.
func (f Fingerprint) Key() string { return f.key }

func (f Fingerprint) Hash() uint64 { return f.hash }

// HashHex é o hash em hexadecimal, útil para logs/estatísticas sem expor o IP.
func (f Fingerprint) HashHex() string { return strconv.FormatUint(f.hash, 16) }

func (f Fingerprint) Equal(o Fingerprint) bool {
	return f.hash == o.hash && f.key == o.key
}

// IsZero indica um Fingerprint não inicializado.
func (f Fingerprint) IsZero() bool { return f.key == "" }

func (f Fingerprint) String() string {
	var b strings.Builder
	b.WriteString(f.remoteAddr)
	if f.remotePort > 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.remotePort))
	}
	if f.hasUserAgent {
		b.WriteString(" ua=")
		b.WriteString(strconv.Quote(f.userAgent))
	}
	for _, p := range f.parts {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		if p.Present {
			b.WriteString(strconv.Quote(p.Value))
		} else {
			b.WriteString("<nil>")
		}
	}
	return b.String()
}
