package cipher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/metergrid/godlms/base"
)

// Streaming AES-GCM decryptors, adapted from the donor's
// gcm.gcmdecstream10/20/30: one io.Reader implementation per security
// level (authenticate-only, encrypt-only, authenticate-and-encrypt), each
// doing incremental GHASH/CTR over a sliding lookahead buffer so neither the
// ciphertext nor the plaintext of a large reassembled APDU is ever held in
// memory whole. The final tagSize bytes of the source are the
// authentication tag, not data; the authenticate-only and
// authenticate-and-encrypt variants hold back one full block behind the
// read cursor so they can recognise end-of-stream before handing those
// bytes back as plaintext.

const streamBufBlocks = 4
const streamBufSize = blockSize * streamBufBlocks

func xorBytes(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// OpenStream behaves like Decrypt, but returns an io.Reader over the
// plaintext instead of a []byte, verifying the authentication tag (when the
// security-control byte requests one) only once the caller has read to the
// end of the stream. wrapped is the complete GLO/DED tag+length+payload
// frame, exactly as Decrypt expects. The replay-protecting peer counter is
// only advanced once the stream has been fully, successfully consumed —
// never on the strength of the frame header alone.
func (c *Context) OpenStream(wrapped []byte) (base.CosemTag, io.Reader, error) {
	if len(wrapped) < 2 {
		return 0, nil, ErrTruncatedFrame
	}
	wrappedTag := base.CosemTag(wrapped[0])
	plainTag, ok := plainTagFor(c.Regime, wrappedTag)
	if !ok {
		return 0, nil, fmt.Errorf("cipher: tag %#x is not a known ciphered APDU", wrapped[0])
	}
	n, consumed, err := decodeLengthBytes(wrapped[1:])
	if err != nil {
		return 0, nil, err
	}
	payload := wrapped[1+consumed:]
	if uint(len(payload)) < n {
		return 0, nil, ErrTruncatedFrame
	}
	payload = payload[:n]

	r, err := c.openPayloadStream(payload)
	if err != nil {
		return 0, nil, err
	}
	return plainTag, r, nil
}

func (c *Context) openPayloadStream(payload []byte) (io.Reader, error) {
	if len(payload) < 5+tagSize {
		return nil, ErrTruncatedFrame
	}
	sc := payload[0]
	ic := binary.BigEndian.Uint32(payload[1:5])
	body := payload[5:]

	if c.peerCounterSeen && ic <= c.peerCounter {
		return nil, ErrReplaySuspected
	}

	authenticate := sc&scAuthenticate != 0
	encrypt := sc&scEncrypt != 0
	if !authenticate && !encrypt {
		return nil, fmt.Errorf("%w: security-control byte %#x requests neither", ErrSecurityLevelMismatch, sc)
	}

	iv := buildIV(c.PeerSystemTitle, ic)
	onDone := func() {
		c.peerCounter = ic
		c.peerCounterSeen = true
	}

	switch {
	case authenticate && !encrypt:
		return newAuthOnlyDecryptStream(c.encKey, sc, c.authKey, iv, bytes.NewReader(body), onDone), nil
	case encrypt && !authenticate:
		return newEncryptOnlyDecryptStream(c.encKey, iv, bytes.NewReader(body), onDone), nil
	default:
		return newAuthEncDecryptStream(c.encKey, sc, c.authKey, iv, bytes.NewReader(body), onDone), nil
	}
}

// authOnlyDecryptStream streams an authenticate-only (GMAC) frame: the
// "ciphertext" is the plaintext itself, folded entirely into the AAD, with
// a trailing tag to verify.
type authOnlyDecryptStream struct {
	eng      *engine
	src      io.Reader
	onDone   func()
	buf      [streamBufSize]byte
	avail    int
	offer    int
	offset   int
	j0       [blockSize]byte
	s        [blockSize]byte
	skip     int // sc||authKey prefix bytes at the head of buf, hashed but not returned
	aadDone  int // bytes already folded into the GHASH in earlier rounds
	eof      bool
	verified bool
}

func newAuthOnlyDecryptStream(eng *engine, sc byte, authKey []byte, iv []byte, src io.Reader, onDone func()) io.Reader {
	st := &authOnlyDecryptStream{eng: eng, src: src, onDone: onDone}
	copy(st.j0[:], iv)
	set32(st.j0[:], 1)
	st.buf[0] = sc
	st.avail = 1 + copy(st.buf[1:], authKey)
	st.skip = st.avail
	return st
}

func (g *authOnlyDecryptStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if g.offset < g.offer {
		n := copy(p, g.buf[g.offset:g.offer])
		g.offset += n
		return n, nil
	}
	if g.eof {
		return 0, io.EOF
	}

	carried := g.avail - g.offer
	copy(g.buf[:carried], g.buf[g.offer:g.avail])
	n, err := io.ReadFull(g.src, g.buf[carried:])
	total := carried + n
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			if total < tagSize {
				return 0, fmt.Errorf("cipher: ciphered stream shorter than authentication tag")
			}
			g.eof = true
		} else {
			return 0, err
		}
	}

	if g.eof {
		cryptLen := total - tagSize
		g.eng.ghash(g.buf[:cryptLen], g.s[:])

		var lenBlock [blockSize]byte
		binary.BigEndian.PutUint64(lenBlock[:8], uint64(g.aadDone+cryptLen)<<3)
		binary.BigEndian.PutUint64(lenBlock[8:], 0)
		g.eng.ghash(lenBlock[:], g.s[:])

		var tagBuf [blockSize]byte
		g.eng.aes.Encrypt(tagBuf[:], g.j0[:])
		xorBytes(tagBuf[:tagSize], g.s[:tagSize])
		if !subtleEqual(tagBuf[:tagSize], g.buf[cryptLen:total]) {
			return 0, ErrInvalidTag
		}
		g.verified = true
		if g.onDone != nil {
			g.onDone()
		}
		g.offer = cryptLen
		g.avail = total
	} else {
		blocks := streamBufBlocks - 1
		chunk := blocks * blockSize
		g.eng.ghash(g.buf[:chunk], g.s[:])
		g.aadDone += chunk
		g.offer = chunk
		g.avail = streamBufSize
	}
	g.offset = g.skip
	g.skip = 0
	return g.Read(p)
}

// encryptOnlyDecryptStream streams an encrypt-only frame: plain CTR-mode
// decryption, with no tag to verify since this security level carries no
// integrity protection.
type encryptOnlyDecryptStream struct {
	eng    *engine
	src    io.Reader
	onDone func()
	buf    [blockSize]byte
	read   int
	offset int
	j0     [blockSize]byte
	eof    bool
}

func newEncryptOnlyDecryptStream(eng *engine, iv []byte, src io.Reader, onDone func()) io.Reader {
	st := &encryptOnlyDecryptStream{eng: eng, src: src, onDone: onDone}
	copy(st.j0[:], iv)
	set32(st.j0[:], 1)
	inc32(st.j0[:])
	return st
}

func (g *encryptOnlyDecryptStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if g.offset < g.read {
		n := copy(p, g.buf[g.offset:g.read])
		g.offset += n
		return n, nil
	}
	if g.eof {
		return 0, io.EOF
	}

	var err error
	g.read, err = io.ReadFull(g.src, g.buf[:])
	g.offset = 0
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			g.eof = true
			if g.read == 0 {
				if g.onDone != nil {
					g.onDone()
				}
				return 0, io.EOF
			}
		} else {
			return 0, err
		}
	}

	var ks [blockSize]byte
	g.eng.aes.Encrypt(ks[:], g.j0[:])
	xorBytes(g.buf[:g.read], ks[:g.read])
	inc32(g.j0[:])
	if g.eof && g.onDone != nil {
		g.onDone()
	}

	return g.Read(p)
}

// authEncDecryptStream streams an authenticate-and-encrypt frame: CTR-mode
// decryption fused with incremental GHASH of the ciphertext, with a
// trailing tag verified once end-of-stream is reached.
type authEncDecryptStream struct {
	eng       *engine
	src       io.Reader
	onDone    func()
	cipherBuf [streamBufSize]byte
	plainBuf  [streamBufSize]byte
	avail     int
	offer     int
	offset    int
	j0        [blockSize]byte
	s         [blockSize]byte
	aadLen    int
	cryptDone int // ciphertext bytes already decrypted in earlier rounds
	eof       bool
}

func newAuthEncDecryptStream(eng *engine, sc byte, authKey []byte, iv []byte, src io.Reader, onDone func()) io.Reader {
	st := &authEncDecryptStream{eng: eng, src: src, onDone: onDone}
	copy(st.j0[:], iv)
	set32(st.j0[:], 1)
	inc32(st.j0[:])

	var aad [1 + 32]byte // sc plus an authentication key no longer than 32 bytes
	aad[0] = sc
	n := 1 + copy(aad[1:], authKey)
	st.aadLen = n
	st.eng.ghash(aad[:n], st.s[:])
	return st
}

func (g *authEncDecryptStream) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if g.offset < g.offer {
		n := copy(p, g.plainBuf[g.offset:g.offer])
		g.offset += n
		return n, nil
	}
	if g.eof {
		return 0, io.EOF
	}

	carried := g.avail - g.offer
	copy(g.cipherBuf[:carried], g.cipherBuf[g.offer:g.avail])
	n, err := io.ReadFull(g.src, g.cipherBuf[carried:])
	total := carried + n
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			if total < tagSize {
				return 0, fmt.Errorf("cipher: ciphered stream shorter than authentication tag")
			}
			g.eof = true
		} else {
			return 0, err
		}
	}

	if g.eof {
		cryptLen := total - tagSize
		g.eng.gctrGhashDecrypt(g.j0[:], g.cipherBuf[:cryptLen], g.plainBuf[:cryptLen], g.s[:])

		var lenBlock [blockSize]byte
		binary.BigEndian.PutUint64(lenBlock[:8], uint64(g.aadLen)<<3)
		binary.BigEndian.PutUint64(lenBlock[8:], uint64(g.cryptDone+cryptLen)<<3)
		g.eng.ghash(lenBlock[:], g.s[:])

		set32(g.j0[:], 1)
		var tagBuf [blockSize]byte
		g.eng.aes.Encrypt(tagBuf[:], g.j0[:])
		xorBytes(tagBuf[:tagSize], g.s[:tagSize])
		if !subtleEqual(tagBuf[:tagSize], g.cipherBuf[cryptLen:total]) {
			return 0, ErrInvalidTag
		}
		if g.onDone != nil {
			g.onDone()
		}
		g.offer = cryptLen
		g.avail = total
	} else {
		blocks := streamBufBlocks - 1
		chunk := blocks * blockSize
		g.eng.gctrGhashDecrypt(g.j0[:], g.cipherBuf[:chunk], g.plainBuf[:chunk], g.s[:])
		g.cryptDone += chunk
		g.offer = chunk
		g.avail = streamBufSize
	}
	g.offset = 0
	return g.Read(p)
}
