package gltfimport

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

// accessorData returns the bytes behind accessor i along with the stride
// between elements.
func accessorData(doc *gltf.Document, i uint32, elemSize int) (*gltf.Accessor, []byte, int, error) {
	if int(i) >= len(doc.Accessors) {
		return nil, nil, 0, fmt.Errorf("accessor %d out of range", i)
	}
	acc := doc.Accessors[i]
	if acc.BufferView == nil {
		return nil, nil, 0, fmt.Errorf("accessor %d has no buffer view", i)
	}
	if int(*acc.BufferView) >= len(doc.BufferViews) {
		return nil, nil, 0, fmt.Errorf("buffer view %d out of range", *acc.BufferView)
	}
	view := doc.BufferViews[*acc.BufferView]
	if int(view.Buffer) >= len(doc.Buffers) {
		return nil, nil, 0, fmt.Errorf("buffer %d out of range", view.Buffer)
	}
	data := doc.Buffers[view.Buffer].Data

	stride := int(view.ByteStride)
	if stride == 0 {
		stride = elemSize
	}
	start := int(view.ByteOffset) + int(acc.ByteOffset)
	end := int(view.ByteOffset) + int(view.ByteLength)
	if acc.Count > 0 {
		need := start + (int(acc.Count)-1)*stride + elemSize
		if need > end || end > len(data) {
			return nil, nil, 0, fmt.Errorf("accessor %d overruns its buffer", i)
		}
	}
	return acc, data[start:end], stride, nil
}

// readVec3 decodes a float VEC3 accessor into a flat x,y,z slice.
func readVec3(doc *gltf.Document, i uint32) ([]float64, error) {
	acc, data, stride, err := accessorData(doc, i, 12)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltf.AccessorVec3 || acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("accessor %d is not a float VEC3", i)
	}
	out := make([]float64, 0, 3*int(acc.Count))
	for e := range int(acc.Count) {
		off := e * stride
		for c := range 3 {
			bits := binary.LittleEndian.Uint32(data[off+4*c:])
			out = append(out, float64(math.Float32frombits(bits)))
		}
	}
	return out, nil
}

// readIndices decodes an unsigned SCALAR accessor.
func readIndices(doc *gltf.Document, i uint32) ([]uint32, error) {
	if int(i) >= len(doc.Accessors) {
		return nil, fmt.Errorf("accessor %d out of range", i)
	}
	size := 0
	switch doc.Accessors[i].ComponentType {
	case gltf.ComponentUbyte:
		size = 1
	case gltf.ComponentUshort:
		size = 2
	case gltf.ComponentUint:
		size = 4
	default:
		return nil, fmt.Errorf("accessor %d has unsupported index component type", i)
	}
	acc, data, stride, err := accessorData(doc, i, size)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, int(acc.Count))
	for e := range out {
		off := e * stride
		switch size {
		case 1:
			out[e] = uint32(data[off])
		case 2:
			out[e] = uint32(binary.LittleEndian.Uint16(data[off:]))
		case 4:
			out[e] = binary.LittleEndian.Uint32(data[off:])
		}
	}
	return out, nil
}
