package device

import (
	"strings"
	"testing"
	"unsafe"
)

func testInfo() Info {
	return Info{
		MaxWorkGroupSize:      256,
		MaxWorkItemDimensions: 3,
		MaxWorkItemSizes:      [3]uint64{256, 256, 64},
		LocalMemoryBytes:      48 * 1024,
	}
}

func TestVerifyThreadSizes(t *testing.T) {
	info := testInfo()

	tests := []struct {
		name    string
		global  []uint64
		local   []uint64
		threads uint64
		wantErr string
	}{
		{"valid 1d", []uint64{1024}, []uint64{128}, 128, ""},
		{"valid 2d", []uint64{64, 64}, []uint64{16, 16}, 256, ""},
		{"indivisible", []uint64{100}, []uint64{64}, 0, "not divisible"},
		{"axis too large", []uint64{1024, 1024, 128}, []uint64{1, 1, 128}, 0, "exceeds device limit"},
		{"group too large", []uint64{64, 64}, []uint64{32, 32}, 0, "work-group size"},
		{"dimension mismatch", []uint64{64, 64}, []uint64{8}, 0, "dimensional"},
		{"zero local", []uint64{64}, []uint64{0}, 0, "zero"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threads, err := info.VerifyThreadSizes(tt.global, tt.local)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if threads != tt.threads {
					t.Errorf("expected %d threads, got %d", tt.threads, threads)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefines(t *testing.T) {
	source := "#define TS 64\n#define WPT 2\n// comment\nkernel body TS WPT\n"
	defines := Defines(source)
	if len(defines) != 2 || defines["TS"] != 64 || defines["WPT"] != 2 {
		t.Errorf("unexpected defines: %v", defines)
	}
}

func TestMockRecordsLaunches(t *testing.T) {
	dev := NewMock()
	prog, build := dev.Compile("#define K 2\nsrc", "entry")
	if build.Status != BuildSuccess {
		t.Fatalf("unexpected build status %s", build.Status)
	}
	if err := prog.SetScalar(0, int32(7)); err != nil {
		t.Fatal(err)
	}
	if _, err := prog.Launch([]uint64{16}, []uint64{4}); err != nil {
		t.Fatal(err)
	}
	if _, err := prog.Launch([]uint64{16}, []uint64{4}); err != nil {
		t.Fatal(err)
	}

	if len(dev.Launches) != 2 {
		t.Fatalf("expected 2 recorded launches, got %d", len(dev.Launches))
	}
	if dev.Launches[0].Run != 0 || dev.Launches[1].Run != 1 {
		t.Error("run indices not tracked")
	}
	if dev.Launches[0].Entry != "entry" {
		t.Errorf("entry not recorded: %s", dev.Launches[0].Entry)
	}
}

func TestMockBufferRoundTrip(t *testing.T) {
	dev := NewMock()
	buf, err := dev.NewBuffer(4 * 8)
	if err != nil {
		t.Fatal(err)
	}

	src := []float64{1, 2, 3, 4}
	if err := buf.Write(unsafe.Pointer(&src[0]), 32); err != nil {
		t.Fatal(err)
	}
	dst := make([]float64, 4)
	if err := buf.Read(unsafe.Pointer(&dst[0]), 32); err != nil {
		t.Fatal(err)
	}
	for i := range src {
		if dst[i] != src[i] {
			t.Errorf("element %d: expected %f, got %f", i, src[i], dst[i])
		}
	}
}
