package queue

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"spapi_partner_v1_202608/internal/service"
)

// ==================== 接口定义 ====================

// sqsAPI SQS 的最小调用面，测试时替换
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// ==================== 配置 ====================

type ConsumerConfig struct {
	QueueURL        string
	WaitTimeSeconds int32 // 长轮询等待，默认 20s
	BatchSize       int32 // 单次拉取条数，默认 10
}

// ==================== 消费者实现 ====================

// NotificationConsumer 轮换通知消费者
// SQS 至少一次投递：逐条处理，单条失败只记日志不中断整批；
// 成功或确定无法处理的消息删除，疑似瞬时失败的留在队列等重投
type NotificationConsumer struct {
	Config   *ConsumerConfig
	Rotation *service.RotationService
	client   sqsAPI

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewNotificationConsumer 工厂方法
func NewNotificationConsumer(cfg *ConsumerConfig, client sqsAPI, rotation *service.RotationService) *NotificationConsumer {
	if cfg.WaitTimeSeconds == 0 {
		cfg.WaitTimeSeconds = 20
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	return &NotificationConsumer{
		Config:   cfg,
		Rotation: rotation,
		client:   client,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start 启动消费循环
func (c *NotificationConsumer) Start() {
	go func() {
		defer close(c.doneCh)
		log.Printf("[SQS] 轮换通知消费者已启动: %s", c.Config.QueueURL)

		for {
			select {
			case <-c.stopCh:
				log.Println("[SQS] 消费者收到停止信号")
				return
			default:
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			c.poll(ctx)
			cancel()
		}
	}()
}

// Stop 停止消费并等待当前批次处理完
func (c *NotificationConsumer) Stop() {
	close(c.stopCh)
	<-c.doneCh
	log.Println("[SQS] 消费者已退出")
}

// poll 拉取并处理一批消息
func (c *NotificationConsumer) poll(ctx context.Context) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.Config.QueueURL),
		MaxNumberOfMessages: c.Config.BatchSize,
		WaitTimeSeconds:     c.Config.WaitTimeSeconds,
	})
	if err != nil {
		log.Printf("[SQS] 拉取消息失败: %v", err)
		// 避免故障时空转打满日志
		time.Sleep(5 * time.Second)
		return
	}

	for _, msg := range out.Messages {
		if msg.Body == nil {
			c.delete(ctx, msg.ReceiptHandle)
			continue
		}

		if err := c.handleMessage(ctx, []byte(*msg.Body)); err != nil {
			var ve *service.ValidationError
			if errors.As(err, &ve) {
				// 格式非法或类型未知：重投也不会变好，记日志后删除
				log.Printf("[SQS] 丢弃无法处理的消息: %v", err)
				c.delete(ctx, msg.ReceiptHandle)
				continue
			}
			// 瞬时失败：留在队列里等 SQS 重投，继续处理下一条
			log.Printf("[SQS] 消息处理失败，等待重投: %v", err)
			continue
		}

		c.delete(ctx, msg.ReceiptHandle)
	}
}

// handleMessage 解析信封并应用新密钥
func (c *NotificationConsumer) handleMessage(ctx context.Context, body []byte) error {
	event, err := service.ParseNewSecretNotification(body)
	if err != nil {
		return err
	}
	return c.Rotation.ApplyNewSecret(ctx, event)
}

func (c *NotificationConsumer) delete(ctx context.Context, receiptHandle *string) {
	if receiptHandle == nil {
		return
	}
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.Config.QueueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		log.Printf("[SQS] 删除消息失败: %v", err)
	}
}
