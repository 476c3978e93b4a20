package policy

import (
	"errors"
	"testing"
)

func newTestPolicy(t *testing.T) *Policy {
	t.Helper()

	p, err := New([]string{".mkv", ".MP4"}, []string{".nfo", ".jpg"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestClassify(t *testing.T) {
	p := newTestPolicy(t)

	tests := []struct {
		path string
		want Action
	}{
		{"video.MKV", ActionLink},
		{"/src/show/ep1.mkv", ActionLink},
		{"/src/movie.mp4", ActionLink},
		{"poster.jpg", ActionCopy},
		{"/src/show/ep1.NFO", ActionCopy},
		{"readme.txt", ActionIgnore},
		{"/src/show/noext", ActionIgnore},
		{"/src/.hidden", ActionIgnore},
		{"/src/archive.mkv.part", ActionIgnore},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := p.Classify(tt.path); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.path, got, tt.want)
			}
		})
	}
}

func TestNewOverlappingExtensions(t *testing.T) {
	_, err := New([]string{".mkv", ".nfo"}, []string{".NFO"})
	if !errors.Is(err, ErrOverlappingExtensions) {
		t.Errorf("New() error = %v, want ErrOverlappingExtensions", err)
	}
}

func TestNewInvalidExtension(t *testing.T) {
	_, err := New([]string{"mkv"}, nil)
	if !errors.Is(err, ErrInvalidExtension) {
		t.Errorf("New() error = %v, want ErrInvalidExtension", err)
	}
}

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "single", input: ".mkv", want: []string{".mkv"}},
		{name: "mixed case and spaces", input: " .MKV , .Mp4", want: []string{".mkv", ".mp4"}},
		{name: "blank entries skipped", input: ".nfo,, ,.jpg,", want: []string{".nfo", ".jpg"}},
		{name: "empty", input: "", want: nil},
		{name: "missing dot", input: ".nfo,jpg", wantErr: true},
		{name: "dot only", input: ".", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseExtensions(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseExtensions() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseExtensions() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseExtensions()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtensionSets(t *testing.T) {
	p := newTestPolicy(t)

	link := p.LinkExtensions()
	if len(link) != 2 || link[0] != ".mkv" || link[1] != ".mp4" {
		t.Errorf("LinkExtensions() = %v", link)
	}

	cp := p.CopyExtensions()
	if len(cp) != 2 || cp[0] != ".jpg" || cp[1] != ".nfo" {
		t.Errorf("CopyExtensions() = %v", cp)
	}
}

func TestActionString(t *testing.T) {
	tests := []struct {
		action Action
		want   string
	}{
		{ActionLink, "LINK"},
		{ActionCopy, "COPY"},
		{ActionIgnore, "IGNORE"},
		{Action(42), "IGNORE"},
	}

	for _, tt := range tests {
		if got := tt.action.String(); got != tt.want {
			t.Errorf("Action.String() = %s, want %s", got, tt.want)
		}
	}
}
