package gigachat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// ErrNoImage is returned when the model answered without invoking its image
// generator. Callers treat it as "send text only", never as a failure.
var ErrNoImage = errors.New("gigachat: response contains no image")

// imgTagRe matches the <img src="..."/> tag the model embeds when the
// built-in image function fires. The src attribute carries the file id.
var imgTagRe = regexp.MustCompile(`<img[^>]+src="([^"]+)"`)

// ExtractImageFileID pulls the generated file id out of a chat response.
func ExtractImageFileID(resp *ChatResponse) (string, bool) {
	if resp == nil {
		return "", false
	}
	for _, choice := range resp.Choices {
		if m := imgTagRe.FindStringSubmatch(choice.Message.Content); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// GenerateImage asks the model to draw the given prompt and returns the
// downloaded image bytes.
func (c *Client) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := c.Chat(ctx, ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "Ты — художник. Нарисуй изображение по описанию пользователя."},
			{Role: RoleUser, Content: prompt},
		},
		FunctionCall: "auto",
	})
	if err != nil {
		return nil, err
	}

	fileID, ok := ExtractImageFileID(resp)
	if !ok {
		return nil, ErrNoImage
	}

	img, err := c.DownloadFile(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("download generated image: %w", err)
	}
	return img, nil
}
