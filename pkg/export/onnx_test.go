package export

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// readField scans one protobuf field from buf, returning the field number,
// the payload (varint value or bytes), and the remaining buffer.
func readField(t *testing.T, buf []byte) (int, uint64, []byte, []byte) {
	t.Helper()
	tag, n := binary.Uvarint(buf)
	require.Positive(t, n)
	buf = buf[n:]
	field := int(tag >> 3)
	switch tag & 7 {
	case 0:
		v, n := binary.Uvarint(buf)
		require.Positive(t, n)
		return field, v, nil, buf[n:]
	case 2:
		size, n := binary.Uvarint(buf)
		require.Positive(t, n)
		buf = buf[n:]
		return field, 0, buf[:size], buf[size:]
	default:
		t.Fatalf("unexpected wire type %d", tag&7)
		return 0, 0, nil, nil
	}
}

func fields(t *testing.T, buf []byte) map[int][][]byte {
	t.Helper()
	out := map[int][][]byte{}
	for len(buf) > 0 {
		var field int
		var v uint64
		var payload []byte
		field, v, payload, buf = readField(t, buf)
		if payload == nil {
			payload = binary.AppendUvarint(nil, v)
		}
		out[field] = append(out[field], payload)
	}
	return out
}

func TestONNXModelStructure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	weights := [][]float64{{0.5, -1.0, 2.0}, {1.5, 0.25, -0.5}}
	bias := []float64{0.1, -0.2}

	require.NoError(t, ONNX(path, weights, bias, "quantization: range [0, 15]"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	model := fields(t, raw)
	ir, _ := binary.Uvarint(model[1][0])
	require.Equal(t, uint64(6), ir)
	require.Equal(t, "gluetune", string(model[2][0]))
	require.Len(t, model[7], 1)

	opset := fields(t, model[8][0])
	version, _ := binary.Uvarint(opset[2][0])
	require.Equal(t, uint64(OpsetVersion), version)

	graph := fields(t, model[7][0])
	require.Equal(t, "sequence_classifier", string(graph[2][0]))
	require.Equal(t, "quantization: range [0, 15]", string(graph[10][0]))
	require.Len(t, graph[1], 1)  // one node
	require.Len(t, graph[5], 2)  // weight and bias initializers
	require.Len(t, graph[11], 1) // input
	require.Len(t, graph[12], 1) // output

	node := fields(t, graph[1][0])
	require.Equal(t, "Gemm", string(node[4][0]))
	require.Equal(t, "classifier", string(node[3][0]))
	require.Len(t, node[1], 3)
	require.Equal(t, "input", string(node[1][0]))
	require.Equal(t, "logits", string(node[2][0]))
}

func TestONNXWeightTranspose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	weights := [][]float64{{1, 2, 3}, {4, 5, 6}}
	require.NoError(t, ONNX(path, weights, []float64{0, 0}, ""))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	graph := fields(t, fields(t, raw)[7][0])

	tensor := fields(t, graph[5][0])
	require.Equal(t, "weight", string(tensor[8][0]))

	var dims []uint64
	for _, d := range tensor[1] {
		v, _ := binary.Uvarint(d)
		dims = append(dims, v)
	}
	// stored as (features, numLabels)
	require.Equal(t, []uint64{3, 2}, dims)

	packed := tensor[4][0]
	require.Len(t, packed, 6*4)
	var got []float32
	for i := 0; i < len(packed); i += 4 {
		got = append(got, math.Float32frombits(binary.LittleEndian.Uint32(packed[i:])))
	}
	require.Equal(t, []float32{1, 4, 2, 5, 3, 6}, got)
}

func TestONNXDynamicBatchDim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, ONNX(path, [][]float64{{1, 2}}, []float64{0}, ""))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	graph := fields(t, fields(t, raw)[7][0])

	input := fields(t, graph[11][0])
	require.Equal(t, "input", string(input[1][0]))

	tensorType := fields(t, fields(t, input[2][0])[1][0])
	shape := fields(t, tensorType[2][0])
	require.Len(t, shape[1], 2)

	batchDim := fields(t, shape[1][0])
	require.Equal(t, "batch", string(batchDim[3][0]))

	featureDim := fields(t, shape[1][1])
	size, _ := binary.Uvarint(featureDim[1][0])
	require.Equal(t, uint64(2), size)
}

func TestONNXRejectsEmptyModel(t *testing.T) {
	err := ONNX(filepath.Join(t.TempDir(), "model.onnx"), nil, nil, "")
	require.Error(t, err)
}
