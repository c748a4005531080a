// Package milenage implements the 3GPP TS 35.206 §4.1 Milenage algorithm
// set (f1-f5, OPc derivation) on top of AES-128 in CBC mode with a zero IV,
// grounded on original_source/pyims/sip/milenge.py.
package milenage

import (
	"crypto/aes"
	"crypto/cipher"
)

const blockSize = 16

var zeroIV = make([]byte, blockSize)

// encryptBlock runs AES-128-CBC with a zero IV over exactly one 16-byte
// block, matching the original's encrypt(k, buf, IV=16*b'\x00').
func encryptBlock(key, buf [16]byte) [16]byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic("milenage: invalid key: " + err.Error())
	}
	mode := cipher.NewCBCEncrypter(block, zeroIV)
	out := make([]byte, blockSize)
	mode.CryptBlocks(out, buf[:])
	var res [16]byte
	copy(res[:], out)
	return res
}

func xor(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// rotate performs a left byte-rotation of buf by n bytes, matching the
// original's rotate(buf, n).
func rotate(buf [16]byte, n int) [16]byte {
	n = n % blockSize
	var out [16]byte
	for i := 0; i < blockSize; i++ {
		out[i] = buf[(i+n)%blockSize]
	}
	return out
}

// OPc derives the operator-variant value from the subscriber key and the
// operator key: AES(Ki, OP) XOR OP.
func OPc(ki, op [16]byte) [16]byte {
	return xor(encryptBlock(ki, op), op)
}

func in1(sqn [6]byte, amf [2]byte) [16]byte {
	var out [16]byte
	copy(out[0:6], sqn[:])
	copy(out[6:8], amf[:])
	copy(out[8:14], sqn[:])
	copy(out[14:16], amf[:])
	return out
}

// F1 computes MAC-A and MAC-S per 3GPP TS 35.206 §4.1.
func F1(ki, opc [16]byte, sqn [6]byte, rand [16]byte, amf [2]byte) (macA [8]byte, macS [8]byte) {
	temp := encryptBlock(ki, xor(rand, opc))
	in1v := in1(sqn, amf)
	rotated := rotate(xor(in1v, opc), 8)
	out1 := xor(encryptBlock(ki, xor(temp, rotated)), opc)
	copy(macA[:], out1[0:8])
	copy(macS[:], out1[8:16])
	return
}

// constants for f2-f5, per the original's c2/c3/c4/c5 and rotation amounts.
var (
	c2 = [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	c3 = [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2}
	c4 = [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 4}
)

// F2F5 computes RES and AK, per the original's combined f2_f5 (rotation 0,
// constant c2).
func F2F5(ki, opc [16]byte, rand [16]byte) (res [8]byte, ak [6]byte) {
	temp := encryptBlock(ki, xor(rand, opc))
	rotated := xor(rotate(xor(temp, opc), 0), c2)
	out2 := xor(encryptBlock(ki, rotated), opc)
	copy(res[:], out2[8:16])
	copy(ak[:], out2[0:6])
	return
}

// F3 derives CK (128 bits), constant c3, rotation 4.
func F3(ki, opc [16]byte, rand [16]byte) [16]byte {
	temp := encryptBlock(ki, xor(rand, opc))
	rotated := xor(rotate(xor(temp, opc), 4), c3)
	return xor(encryptBlock(ki, rotated), opc)
}

// F4 derives IK (128 bits), constant c4, rotation 8.
func F4(ki, opc [16]byte, rand [16]byte) [16]byte {
	temp := encryptBlock(ki, xor(rand, opc))
	rotated := xor(rotate(xor(temp, opc), 8), c4)
	return xor(encryptBlock(ki, rotated), opc)
}
