package fat

import (
	"errors"
	"testing"
)

func Test_makeValidName(t *testing.T) {
	tests := []struct {
		name    string
		part    string
		want    [11]byte
		wantErr bool
	}{
		{
			name: "plain name with extension",
			part: "HELLO.TXT",
			want: [11]byte{'H', 'E', 'L', 'L', 'O', ' ', ' ', ' ', 'T', 'X', 'T'},
		},
		{
			name: "lowercase is uppercased",
			part: "hello.txt",
			want: [11]byte{'H', 'E', 'L', 'L', 'O', ' ', ' ', ' ', 'T', 'X', 'T'},
		},
		{
			name: "short name and extension are space padded",
			part: "A.B",
			want: [11]byte{'A', ' ', ' ', ' ', ' ', ' ', ' ', ' ', 'B', ' ', ' '},
		},
		{
			name: "name without extension",
			part: "README",
			want: [11]byte{'R', 'E', 'A', 'D', 'M', 'E', ' ', ' ', ' ', ' ', ' '},
		},
		{
			name: "full 8.3 name",
			part: "DATALOGS.BIN",
			want: [11]byte{'D', 'A', 'T', 'A', 'L', 'O', 'G', 'S', 'B', 'I', 'N'},
		},
		{
			name:    "base longer than eight characters",
			part:    "TOOLONGNAME.TXT",
			wantErr: true,
		},
		{
			name:    "second dot",
			part:    "A.B.C",
			wantErr: true,
		},
		{
			name:    "more than eight characters without dot",
			part:    "ABCDEFGHIJKL",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := makeValidName(tt.part)
			if (err != nil) != tt.wantErr {
				t.Errorf("makeValidName() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil {
				if !errors.Is(err, ErrInvalidName) {
					t.Errorf("makeValidName() error = %v, want ErrInvalidName", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("makeValidName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func Test_pathResolver(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantParts []string
		wantFile  []bool
	}{
		{
			name:      "file in root",
			path:      "/HELLO.TXT",
			wantParts: []string{"HELLO   TXT"},
			wantFile:  []bool{true},
		},
		{
			name:      "nested path",
			path:      "/LOGS/DAY1.CSV",
			wantParts: []string{"LOGS       ", "DAY1    CSV"},
			wantFile:  []bool{false, true},
		},
		{
			name:      "no leading slash",
			path:      "HELLO.TXT",
			wantParts: []string{"HELLO   TXT"},
			wantFile:  []bool{true},
		},
		{
			name:      "double slashes are skipped",
			path:      "//LOGS//DAY1.CSV",
			wantParts: []string{"LOGS       ", "DAY1    CSV"},
			wantFile:  []bool{false, true},
		},
		{
			name:      "bare root",
			path:      "/",
			wantParts: nil,
			wantFile:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pr pathResolver
			pr.reset(tt.path)

			var parts []string
			var files []bool
			for {
				ok, err := pr.nextPart()
				if err != nil {
					t.Fatalf("nextPart() error = %v", err)
				}
				if !ok {
					break
				}
				parts = append(parts, string(pr.name[:]))
				files = append(files, pr.isFilePart())
			}

			if len(parts) != len(tt.wantParts) {
				t.Fatalf("got %d parts %q, want %d", len(parts), parts, len(tt.wantParts))
			}
			for i := range parts {
				if parts[i] != tt.wantParts[i] {
					t.Errorf("part %d = %q, want %q", i, parts[i], tt.wantParts[i])
				}
				if files[i] != tt.wantFile[i] {
					t.Errorf("isFilePart() for part %d = %v, want %v", i, files[i], tt.wantFile[i])
				}
			}
		})
	}
}

func Test_splitLastComponent(t *testing.T) {
	tests := []struct {
		path     string
		wantDir  string
		wantBase string
	}{
		{"/HELLO.TXT", "", "HELLO.TXT"},
		{"/LOGS/DAY1.CSV", "/LOGS", "DAY1.CSV"},
		{"HELLO.TXT", "", "HELLO.TXT"},
		{"/LOGS/", "", "LOGS"},
	}
	for _, tt := range tests {
		dir, base := splitLastComponent(tt.path)
		if dir != tt.wantDir || base != tt.wantBase {
			t.Errorf("splitLastComponent(%q) = %q, %q, want %q, %q", tt.path, dir, base, tt.wantDir, tt.wantBase)
		}
	}
}
