package display

import (
	"errors"
	"testing"
)

type fakeSelector struct {
	sent []uint8
	err  error
}

func (f *fakeSelector) SelectDisplay(index uint8) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, index)
	return nil
}

func intPtr(v int) *int { return &v }

func TestSelectByNameAndIndex(t *testing.T) {
	sel := &fakeSelector{}
	s := NewDisplayService(sel, []string{"logo", "smile", "warning"})

	if idx, err := s.Select(SelectRequest{Name: "warning"}); err != nil || idx != 2 {
		t.Errorf("Select(name) = %d, %v", idx, err)
	}
	if idx, err := s.Select(SelectRequest{Index: intPtr(1)}); err != nil || idx != 1 {
		t.Errorf("Select(index) = %d, %v", idx, err)
	}
	if len(sel.sent) != 2 || sel.sent[0] != 2 || sel.sent[1] != 1 {
		t.Errorf("sent = %v", sel.sent)
	}
}

func TestSelectRejects(t *testing.T) {
	sel := &fakeSelector{}
	s := NewDisplayService(sel, []string{"logo"})

	for _, req := range []SelectRequest{
		{},
		{Name: "missing"},
		{Index: intPtr(1)},
		{Index: intPtr(-1)},
	} {
		if _, err := s.Select(req); err == nil {
			t.Errorf("Select(%+v) succeeded", req)
		}
	}
	if len(sel.sent) != 0 {
		t.Errorf("rejected requests reached the rover: %v", sel.sent)
	}
}

func TestSelectWithoutImageList(t *testing.T) {
	s := NewDisplayService(&fakeSelector{}, nil)
	if idx, err := s.Select(SelectRequest{Index: intPtr(200)}); err != nil || idx != 200 {
		t.Errorf("Select = %d, %v", idx, err)
	}
	if _, err := s.Select(SelectRequest{Index: intPtr(256)}); err == nil {
		t.Error("index 256 accepted")
	}
}

func TestSelectPropagatesSendError(t *testing.T) {
	sendErr := errors.New("channel closed")
	s := NewDisplayService(&fakeSelector{err: sendErr}, []string{"logo"})
	if _, err := s.Select(SelectRequest{Index: intPtr(0)}); !errors.Is(err, sendErr) {
		t.Errorf("err = %v", err)
	}
}

func TestSetImagesResetsSelection(t *testing.T) {
	s := NewDisplayService(&fakeSelector{}, []string{"a", "b", "c"})
	if _, err := s.Select(SelectRequest{Name: "c"}); err != nil {
		t.Fatal(err)
	}
	s.SetImages([]string{"a"})
	if got := s.GetImages(); len(got) != 1 {
		t.Errorf("images = %v", got)
	}
	if s.current != -1 {
		t.Errorf("current = %d after shrinking the list", s.current)
	}
}
