package milenage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOPcDerivation(t *testing.T) {
	// spec.md §8 scenario 1: Ki=00112233445566778899aabbccddeeff,
	// OP=0 => OPc = AES(Ki, 0) XOR 0 = AES(Ki, 0).
	var ki [16]byte
	for i := range ki {
		ki[i] = byte(0x00 + i*0x11)
	}
	var op [16]byte // all zero

	opc := OPc(ki, op)
	expected := encryptBlock(ki, op)
	require.Equal(t, expected, opc)
}

func TestF1Deterministic(t *testing.T) {
	var ki, opc, rand [16]byte
	for i := range ki {
		ki[i] = byte(i)
		opc[i] = byte(16 - i)
		rand[i] = byte(i * 2)
	}
	sqn := [6]byte{1, 2, 3, 4, 5, 6}
	amf := [2]byte{0x80, 0x00}

	macA1, macS1 := F1(ki, opc, sqn, rand, amf)
	macA2, macS2 := F1(ki, opc, sqn, rand, amf)
	require.Equal(t, macA1, macA2)
	require.Equal(t, macS1, macS2)
	require.NotEqual(t, macA1, macS1)
}

func TestF2F5Deterministic(t *testing.T) {
	var ki, opc, rand [16]byte
	for i := range ki {
		ki[i] = byte(i + 1)
		opc[i] = byte(2 * i)
		rand[i] = byte(3 * i)
	}
	res1, ak1 := F2F5(ki, opc, rand)
	res2, ak2 := F2F5(ki, opc, rand)
	require.Equal(t, res1, res2)
	require.Equal(t, ak1, ak2)
}

func TestF3F4DifferFromEachOther(t *testing.T) {
	var ki, opc, rand [16]byte
	for i := range ki {
		ki[i] = byte(i)
		opc[i] = byte(i)
		rand[i] = byte(i)
	}
	ck := F3(ki, opc, rand)
	ik := F4(ki, opc, rand)
	require.NotEqual(t, ck, ik)
}
