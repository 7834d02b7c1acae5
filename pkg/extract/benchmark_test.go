package extract

import (
	"context"
	"testing"

	"github.com/EchoTools/hhhFileTools/internal/testutil"
)

// BenchmarkRun measures a full pass over a bundle of many small objects.
func BenchmarkRun(b *testing.B) {
	f := sampleFile()
	objects := make([]testutil.Object, 0, 512)
	for i := range 512 {
		objects = append(objects, testutil.Object{PathID: int64(i + 1), TypeIndex: 0, Data: textData})
	}
	f.Objects = objects
	data := f.Bytes()

	x := New()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := x.Run(context.Background(), "bench", data); err != nil {
			b.Fatal(err)
		}
	}
}
