package context

import (
	"math"

	"github.com/haasonsaas/quill/internal/models"
	qmodels "github.com/haasonsaas/quill/pkg/models"
)

// Image token pricing constants.
const (
	anthropicMaxDim       = 8192
	anthropicMaxMegapixel = 1.15
	anthropicPixelsPerTok = 750

	openAITileSize   = 512
	openAIBaseTokens = 85
	openAITileTokens = 170
	openAIMaxLong    = 2048
	openAIMaxShort   = 768

	geminiImageTokens = 258

	defaultImageDim = 1024
)

// ImageDetail selects the OpenAI vision detail mode.
type ImageDetail string

const (
	DetailAuto ImageDetail = "auto"
	DetailLow  ImageDetail = "low"
	DetailHigh ImageDetail = "high"
)

// ImageTokens prices one image for a provider. Zero dimensions default to
// 1024x1024. Unknown providers get the conservative maximum across providers.
func ImageTokens(provider models.Provider, width, height int) int {
	if width <= 0 {
		width = defaultImageDim
	}
	if height <= 0 {
		height = defaultImageDim
	}

	switch provider {
	case models.ProviderAnthropic:
		return anthropicImageTokens(width, height)
	case models.ProviderOpenAI:
		return openAIImageTokens(width, height, DetailAuto)
	case models.ProviderGoogle:
		return geminiImageTokens
	default:
		return maxInt(
			anthropicImageTokens(width, height),
			openAIImageTokens(width, height, DetailHigh),
			geminiImageTokens,
		)
	}
}

func anthropicImageTokens(width, height int) int {
	w, h := float64(width), float64(height)
	if w > anthropicMaxDim {
		w = anthropicMaxDim
	}
	if h > anthropicMaxDim {
		h = anthropicMaxDim
	}
	megapixels := w * h / 1e6
	if megapixels > anthropicMaxMegapixel {
		scale := math.Sqrt(anthropicMaxMegapixel / megapixels)
		w *= scale
		h *= scale
	}
	tokens := int(math.Ceil(w * h / anthropicPixelsPerTok))
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func openAIImageTokens(width, height int, detail ImageDetail) int {
	if detail == DetailAuto {
		if width <= openAITileSize && height <= openAITileSize {
			detail = DetailLow
		} else {
			detail = DetailHigh
		}
	}
	if detail == DetailLow {
		return openAIBaseTokens
	}

	w, h := float64(width), float64(height)
	long, short := w, h
	if h > w {
		long, short = h, w
	}
	if long > openAIMaxLong {
		scale := openAIMaxLong / long
		w *= scale
		h *= scale
		long, short = long*scale, short*scale
	}
	if short > openAIMaxShort {
		scale := openAIMaxShort / short
		w *= scale
		h *= scale
	}

	tiles := int(math.Ceil(w/openAITileSize)) * int(math.Ceil(h/openAITileSize))
	if tiles < 1 {
		tiles = 1
	}
	return openAIBaseTokens + tiles*openAITileTokens
}

// MessageImageTokens sums image token costs over all image blocks of a
// message sequence.
func MessageImageTokens(provider models.Provider, messages []qmodels.ContextMessage) int {
	total := 0
	for i := range messages {
		for _, b := range messages[i].Blocks {
			if b.Type == qmodels.BlockImage {
				total += ImageTokens(provider, b.Width, b.Height)
			}
		}
	}
	return total
}

func maxInt(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
