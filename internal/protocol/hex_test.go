package protocol

import "testing"

func TestFormatHex(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		limit int
		want  string
	}{
		{"空", nil, 0, ""},
		{"单字节", []byte{0x0A}, 0, "0A"},
		{"完整帧", []byte{0x05, 0x00, 0x00, 0x00, 0x2A, 0xAA, 0xBB, 0xCC, 0xDD}, 0, "05 00 00 00 2A AA BB CC DD"},
		{"截断", []byte{0x01, 0x02, 0x03, 0x04}, 2, "01 02 …(+2 bytes)"},
		{"上限等于长度", []byte{0x01, 0x02}, 2, "01 02"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatHex(tt.input, tt.limit); got != tt.want {
				t.Errorf("FormatHex(%v, %d) = %q, want %q", tt.input, tt.limit, got, tt.want)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	if ClientToUpstream.String() != "client->upstream" || ClientToUpstream.Tag() != "C->S" {
		t.Errorf("ClientToUpstream = %q/%q", ClientToUpstream.String(), ClientToUpstream.Tag())
	}
	if UpstreamToClient.String() != "upstream->client" || UpstreamToClient.Tag() != "S->C" {
		t.Errorf("UpstreamToClient = %q/%q", UpstreamToClient.String(), UpstreamToClient.Tag())
	}
	if Direction(9).String() != "unknown" {
		t.Errorf("未知方向 = %q", Direction(9).String())
	}
}
