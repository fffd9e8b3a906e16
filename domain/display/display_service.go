package display

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/open-teleop/station/pkg/channel"
)

// Selector sends a display select command to the rover.
type Selector interface {
	SelectDisplay(index uint8) error
}

// SelectRequest picks an image by index or by name. Name wins when both are
// set.
type SelectRequest struct {
	Index *int   `json:"index"`
	Name  string `json:"name"`
}

// DisplayService maps the rover's stored display images to indices.
type DisplayService struct {
	selector Selector

	mu      sync.RWMutex
	images  []string
	current int
}

// NewDisplayService creates a new display service instance
func NewDisplayService(selector Selector, images []string) *DisplayService {
	return &DisplayService{
		selector: selector,
		images:   append([]string(nil), images...),
		current:  -1,
	}
}

// SetImages replaces the image list after a configuration change.
func (s *DisplayService) SetImages(images []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = append([]string(nil), images...)
	if s.current >= len(s.images) {
		s.current = -1
	}
}

// GetImages returns the image names in index order.
func (s *DisplayService) GetImages() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.images...)
}

// Resolve turns a request into an image index.
func (s *DisplayService) Resolve(req SelectRequest) (uint8, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if req.Name != "" {
		for i, img := range s.images {
			if img == req.Name {
				return uint8(i), nil
			}
		}
		return 0, fmt.Errorf("unknown display image %q", req.Name)
	}
	if req.Index == nil {
		return 0, fmt.Errorf("display request needs an index or a name")
	}
	if *req.Index < 0 || *req.Index > 255 {
		return 0, fmt.Errorf("display index %d out of range", *req.Index)
	}
	if len(s.images) > 0 && *req.Index >= len(s.images) {
		return 0, fmt.Errorf("display index %d out of range, %d images configured", *req.Index, len(s.images))
	}
	return uint8(*req.Index), nil
}

// Select resolves the request and sends it to the rover.
func (s *DisplayService) Select(req SelectRequest) (uint8, error) {
	index, err := s.Resolve(req)
	if err != nil {
		return 0, err
	}
	if err := s.selector.SelectDisplay(index); err != nil {
		return 0, err
	}
	s.mu.Lock()
	s.current = int(index)
	s.mu.Unlock()
	return index, nil
}

// GetDisplayHandler lists the images and the last selection.
func (s *DisplayService) GetDisplayHandler(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := fiber.Map{"images": s.images, "current": nil}
	if s.current >= 0 {
		resp["current"] = s.current
		if s.current < len(s.images) {
			resp["name"] = s.images[s.current]
		}
	}
	return c.JSON(resp)
}

// SelectHandler handles POST /api/display
func (s *DisplayService) SelectHandler(c *fiber.Ctx) error {
	var req SelectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if _, err := s.Resolve(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	index, err := s.Select(req)
	if errors.Is(err, channel.ErrNotOpen) {
		return fiber.NewError(fiber.StatusServiceUnavailable, err.Error())
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "success", "current": index})
}
