// Package export serializes a trained model to an ONNX interchange file.
//
// The linear classifier maps onto a single Gemm node, so the ModelProto is
// assembled directly in protobuf wire format rather than pulling in a
// generated ONNX binding.
package export

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// OpsetVersion is the ONNX operator set the exported graph targets.
const OpsetVersion = 11

const (
	irVersion     = 6
	tensorFloat   = 1 // TensorProto.DataType FLOAT
	wireVarint    = 0
	wireLengthDel = 2
)

// ONNX writes an opset-11 model computing logits = input x W + B, with a
// dynamic batch dimension. Weights arrive as numLabels rows of featureSize
// columns and are stored transposed so the Gemm runs with default
// attributes. The doc string carries run metadata such as quantization
// calibration results.
func ONNX(path string, weights [][]float64, bias []float64, doc string) error {
	if len(weights) == 0 {
		return fmt.Errorf("export: model has no weights")
	}
	numLabels := len(weights)
	features := len(weights[0])

	// Transpose to (features, numLabels).
	wData := make([]float64, 0, features*numLabels)
	for f := 0; f < features; f++ {
		for c := 0; c < numLabels; c++ {
			wData = append(wData, weights[c][f])
		}
	}

	node := encodeNode("classifier", "Gemm", []string{"input", "weight", "bias"}, []string{"logits"})
	graph := encodeGraph(graphSpec{
		name: "sequence_classifier",
		doc:  doc,
		nodes: [][]byte{node},
		initializers: [][]byte{
			encodeTensor("weight", []int64{int64(features), int64(numLabels)}, wData),
			encodeTensor("bias", []int64{int64(numLabels)}, bias),
		},
		inputs:  [][]byte{encodeValueInfo("input", -1, int64(features))},
		outputs: [][]byte{encodeValueInfo("logits", -1, int64(numLabels))},
	})

	var model []byte
	model = appendVarintField(model, 1, irVersion)
	model = appendBytesField(model, 2, []byte("gluetune"))
	model = appendBytesField(model, 7, graph)
	model = appendBytesField(model, 8, encodeOpset("", OpsetVersion))

	return os.WriteFile(path, model, 0o644)
}

type graphSpec struct {
	name         string
	doc          string
	nodes        [][]byte
	initializers [][]byte
	inputs       [][]byte
	outputs      [][]byte
}

func encodeGraph(spec graphSpec) []byte {
	var out []byte
	for _, node := range spec.nodes {
		out = appendBytesField(out, 1, node)
	}
	out = appendBytesField(out, 2, []byte(spec.name))
	for _, init := range spec.initializers {
		out = appendBytesField(out, 5, init)
	}
	if spec.doc != "" {
		out = appendBytesField(out, 10, []byte(spec.doc))
	}
	for _, in := range spec.inputs {
		out = appendBytesField(out, 11, in)
	}
	for _, o := range spec.outputs {
		out = appendBytesField(out, 12, o)
	}
	return out
}

func encodeNode(name, opType string, inputs, outputs []string) []byte {
	var out []byte
	for _, in := range inputs {
		out = appendBytesField(out, 1, []byte(in))
	}
	for _, o := range outputs {
		out = appendBytesField(out, 2, []byte(o))
	}
	out = appendBytesField(out, 3, []byte(name))
	out = appendBytesField(out, 4, []byte(opType))
	return out
}

func encodeTensor(name string, dims []int64, values []float64) []byte {
	var out []byte
	for _, d := range dims {
		out = appendVarintField(out, 1, uint64(d))
	}
	out = appendVarintField(out, 2, tensorFloat)

	packed := make([]byte, 0, 4*len(values))
	var scratch [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(float32(v)))
		packed = append(packed, scratch[:]...)
	}
	out = appendBytesField(out, 4, packed)
	out = appendBytesField(out, 8, []byte(name))
	return out
}

// encodeValueInfo describes a float tensor of shape (batch, size); a
// negative batch becomes the symbolic dimension "batch".
func encodeValueInfo(name string, batch, size int64) []byte {
	var batchDim []byte
	if batch < 0 {
		batchDim = appendBytesField(nil, 3, []byte("batch"))
	} else {
		batchDim = appendVarintField(nil, 1, uint64(batch))
	}
	sizeDim := appendVarintField(nil, 1, uint64(size))

	var shape []byte
	shape = appendBytesField(shape, 1, batchDim)
	shape = appendBytesField(shape, 1, sizeDim)

	var tensorType []byte
	tensorType = appendVarintField(tensorType, 1, tensorFloat)
	tensorType = appendBytesField(tensorType, 2, shape)

	typ := appendBytesField(nil, 1, tensorType)

	var out []byte
	out = appendBytesField(out, 1, []byte(name))
	out = appendBytesField(out, 2, typ)
	return out
}

func encodeOpset(domain string, version uint64) []byte {
	var out []byte
	if domain != "" {
		out = appendBytesField(out, 1, []byte(domain))
	}
	out = appendVarintField(out, 2, version)
	return out
}

func appendVarintField(buf []byte, field int, value uint64) []byte {
	buf = appendVarint(buf, uint64(field)<<3|wireVarint)
	return appendVarint(buf, value)
}

func appendBytesField(buf []byte, field int, value []byte) []byte {
	buf = appendVarint(buf, uint64(field)<<3|wireLengthDel)
	buf = appendVarint(buf, uint64(len(value)))
	return append(buf, value...)
}

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}
