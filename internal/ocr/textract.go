package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/pdf-extractor/internal/models"
	"github.com/feichai0017/pdf-extractor/pkg/logger"
)

// TextractBackend recognizes text through AWS Textract. It is the cloud
// alternative to the local tesseract backend; psm has no Textract
// equivalent and is ignored.
type TextractBackend struct {
	client *textract.Client
	logger logger.Logger
	config *TextractConfig
}

type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

func NewTextractBackend(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractBackend, error) {
	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return &TextractBackend{
		client: textract.NewFromConfig(awsCfg),
		logger: log,
		config: cfg,
	}, nil
}

func (b *TextractBackend) Name() string { return "textract" }

func (b *TextractBackend) Recognize(ctx context.Context, img image.Image, lang string, psm int) ([]Word, error) {
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	result, err := b.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{
			Bytes: buf.Bytes(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	bounds := img.Bounds()
	width := float64(bounds.Dx())
	height := float64(bounds.Dy())

	var words []Word
	for _, block := range result.Blocks {
		if block.BlockType != types.BlockTypeWord || block.Text == nil {
			continue
		}
		conf := float64(aws.ToFloat32(block.Confidence))
		if conf < float64(b.config.MinConfidence) {
			continue
		}
		word := Word{
			Text:       aws.ToString(block.Text),
			Confidence: conf,
		}
		// Textract geometry is normalized 0-1; convert to pixels.
		if block.Geometry != nil && block.Geometry.BoundingBox != nil {
			bb := block.Geometry.BoundingBox
			word.BBox = models.BBox{
				X: int(float64(bb.Left) * width),
				Y: int(float64(bb.Top) * height),
				W: int(float64(bb.Width) * width),
				H: int(float64(bb.Height) * height),
			}
		}
		words = append(words, word)
	}
	return words, nil
}
