package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/gsd-format/gsd"
)

const statHelp = `gsd stat [-flags] <path>

Print summary statistics (min, max, mean, standard deviation) for one
chunk, converting each element of its payload to float64.

Example:
  % gsd stat -frame 0 -name particles/position traj.gsd
`

func readChunkAsFloat64(h *gsd.Handle, entry gsd.ChunkEntry) ([]float64, error) {
	buf := make([]byte, entry.Size())
	if err := h.ReadChunk(entry, buf); err != nil {
		return nil, err
	}
	return decodeFloat64(buf, entry.Type)
}

func statCmd(ctx context.Context, args []string) error {
	fset := flag.NewFlagSet("stat", flag.ExitOnError)
	var (
		frame = fset.Uint64("frame", 0, "frame number to read the chunk from")
		name  = fset.String("name", "", "chunk name")
	)
	fset.Usage = usage(fset, statHelp)
	fset.Parse(args)

	if fset.NArg() != 1 || *name == "" {
		fset.Usage()
		return errArgs
	}

	h, err := gsd.Open(fset.Arg(0), gsd.ModeReadOnly)
	if err != nil {
		return err
	}
	defer h.Close()

	entry, ok := h.FindChunk(*frame, *name)
	if !ok {
		return fmt.Errorf("chunk (frame=%d, name=%q) not found", *frame, *name)
	}

	values, err := readChunkAsFloat64(h, entry)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("chunk (frame=%d, name=%q) is empty", *frame, *name)
	}

	mean, std := stat.MeanStdDev(values, nil)
	fmt.Printf("n: %d\n", len(values))
	fmt.Printf("min: %g\n", floats.Min(values))
	fmt.Printf("max: %g\n", floats.Max(values))
	fmt.Printf("mean: %g\n", mean)
	fmt.Printf("stddev: %g\n", std)
	return nil
}

// decodeFloat64 widens buf's elements, interpreted as entry's type, into
// float64, the only numeric width gonum/stat operates on.
func decodeFloat64(buf []byte, typ gsd.Type) ([]float64, error) {
	sz := gsd.SizeofType(typ)
	if sz == 0 || len(buf)%sz != 0 {
		return nil, fmt.Errorf("stat: cannot decode type %d", typ)
	}
	n := len(buf) / sz
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		chunk := buf[i*sz : (i+1)*sz]
		switch typ {
		case gsd.TypeUint8:
			out[i] = float64(chunk[0])
		case gsd.TypeInt8:
			out[i] = float64(int8(chunk[0]))
		case gsd.TypeUint16:
			out[i] = float64(binary.LittleEndian.Uint16(chunk))
		case gsd.TypeInt16:
			out[i] = float64(int16(binary.LittleEndian.Uint16(chunk)))
		case gsd.TypeUint32:
			out[i] = float64(binary.LittleEndian.Uint32(chunk))
		case gsd.TypeInt32:
			out[i] = float64(int32(binary.LittleEndian.Uint32(chunk)))
		case gsd.TypeUint64:
			out[i] = float64(binary.LittleEndian.Uint64(chunk))
		case gsd.TypeInt64:
			out[i] = float64(int64(binary.LittleEndian.Uint64(chunk)))
		case gsd.TypeFloat32:
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case gsd.TypeFloat64:
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		default:
			return nil, fmt.Errorf("stat: unknown type %d", typ)
		}
	}
	return out, nil
}
