package services

import (
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"natours-api/utils"
)

const (
	jpegQuality = 90

	userPhotoSize   = 500
	tourImageWidth  = 2000
	tourImageHeight = 1333

	MaxTourImages = 3

	// maxInputPixels bounds the decoded size of an upload.
	maxInputPixels = 40_000_000
)

var (
	errNotAnImage    = utils.BadRequest("Not an image. Please upload only images.")
	errImageTooLarge = utils.BadRequest("Image dimensions are too large. Please upload a smaller image.")
)

// ImageService re-encodes uploads to fixed size JPEGs under the public dir.
type ImageService struct {
	publicDir string
	now       func() time.Time
}

func NewImageService(publicDir string) *ImageService {
	return &ImageService{publicDir: publicDir, now: time.Now}
}

func (s *ImageService) UsersDir() string {
	return filepath.Join(s.publicDir, "img", "users")
}

func (s *ImageService) ToursDir() string {
	return filepath.Join(s.publicDir, "img", "tours")
}

// SaveUserPhoto stores a 500x500 square and returns its file name.
func (s *ImageService) SaveUserPhoto(userID string, file *multipart.FileHeader) (string, error) {
	name := fmt.Sprintf("user-%s-%d.jpeg", userID, s.now().UnixMilli())
	if err := s.process(file, userPhotoSize, userPhotoSize, filepath.Join(s.UsersDir(), name)); err != nil {
		return "", err
	}
	return name, nil
}

// SaveTourCover stores the cover image of a tour and returns its file name.
func (s *ImageService) SaveTourCover(tourID string, file *multipart.FileHeader) (string, error) {
	name := fmt.Sprintf("tour-%s-%d-cover.jpeg", tourID, s.now().UnixMilli())
	if err := s.process(file, tourImageWidth, tourImageHeight, filepath.Join(s.ToursDir(), name)); err != nil {
		return "", err
	}
	return name, nil
}

// SaveTourImages stores the gallery images of a tour, numbered from 1.
func (s *ImageService) SaveTourImages(tourID string, files []*multipart.FileHeader) ([]string, error) {
	if len(files) > MaxTourImages {
		return nil, utils.BadRequest(fmt.Sprintf("A tour can have at most %d images", MaxTourImages))
	}

	stamp := s.now().UnixMilli()
	names := make([]string, 0, len(files))
	for i, file := range files {
		name := fmt.Sprintf("tour-%s-%d-%d.jpeg", tourID, stamp, i+1)
		if err := s.process(file, tourImageWidth, tourImageHeight, filepath.Join(s.ToursDir(), name)); err != nil {
			s.DiscardTourImages(names...)
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

// DiscardTourImages removes stored tour files. Missing files are ignored.
func (s *ImageService) DiscardTourImages(names ...string) {
	discard(s.ToursDir(), names)
}

// DiscardUserPhoto removes a stored user photo. Missing files are ignored.
func (s *ImageService) DiscardUserPhoto(name string) {
	discard(s.UsersDir(), []string{name})
}

func discard(dir string, names []string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		_ = os.Remove(filepath.Join(dir, filepath.Base(name)))
	}
}

func (s *ImageService) process(file *multipart.FileHeader, width, height int, dest string) error {
	if ct := file.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return errNotAnImage
	}

	src, err := file.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	cfg, _, err := image.DecodeConfig(src)
	if err != nil {
		return errNotAnImage
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > maxInputPixels {
		return errImageTooLarge
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return err
	}

	img, err := decode(src)
	if err != nil {
		return errNotAnImage
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	resized := imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
	return imaging.Save(resized, dest, imaging.JPEGQuality(jpegQuality))
}

func decode(r io.Reader) (image.Image, error) {
	return imaging.Decode(r, imaging.AutoOrientation(true))
}
