// Package ses 通过 AWS SES v2 投递外发邮件。
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"

	"mailarchive/backend/internal/relay"
)

// SendEmailAPI SES v2 SendEmail 操作，测试中用 mock 替换
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config SES 配置；密钥为空时使用默认凭证链
type Config struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	ConfigurationSet string
}

// Client SES 中继
type Client struct {
	api              SendEmailAPI
	configurationSet string
}

var _ relay.Relay = (*Client)(nil)

// New 加载 AWS 配置并创建 SES 中继
func New(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := NewWithClient(sesv2.NewFromConfig(awsCfg))
	client.configurationSet = cfg.ConfigurationSet
	return client, nil
}

// NewWithClient 使用给定的 API 客户端创建中继
func NewWithClient(api SendEmailAPI) *Client {
	return &Client{api: api}
}

// Name 返回中继名称
func (c *Client) Name() string {
	return "ses"
}

// Submit 以原始报文方式发送，返回 SES 分配的 MessageId。
func (c *Client) Submit(ctx context.Context, env *relay.Envelope) (string, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(env.From),
		Destination: &types.Destination{
			ToAddresses: env.To,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: env.Data},
		},
	}
	if c.configurationSet != "" {
		input.ConfigurationSetName = aws.String(c.configurationSet)
	}

	out, err := c.api.SendEmail(ctx, input)
	if err != nil {
		return "", &relay.RelayError{Provider: c.Name(), Temporary: isTemporary(err), Err: err}
	}
	if out == nil || out.MessageId == nil || *out.MessageId == "" {
		return "", &relay.RelayError{Provider: c.Name(), Err: errors.New("empty message id in response")}
	}
	return *out.MessageId, nil
}

var throttlingCodes = map[string]bool{
	"TooManyRequestsException": true,
	"LimitExceededException":   true,
	"Throttling":               true,
	"ThrottlingException":      true,
}

// isTemporary 限流、服务端故障和超时视为暂时失败
func isTemporary(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttlingCodes[apiErr.ErrorCode()] || apiErr.ErrorFault() == smithy.FaultServer
	}
	return errors.Is(err, context.DeadlineExceeded)
}
