package queue

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spapi_partner_v1_202608/internal/model"
	"spapi_partner_v1_202608/internal/repository"
	"spapi_partner_v1_202608/internal/service"
)

// ==================== 测试辅助 ====================

// fakeSQS SQS 桩实现：首次拉取返回预置消息，之后返回空批次
type fakeSQS struct {
	messages []types.Message
	deleted  []string
	drained  bool
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.drained {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	f.drained = true
	return &sqs.ReceiveMessageOutput{Messages: f.messages}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func newConsumerFixture(t *testing.T, messages []types.Message) (*NotificationConsumer, *fakeSQS, repository.PartnerRepository) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	db.AutoMigrate(&model.Partner{})

	partnerRepo := repository.NewPartnerRepository(db)
	rotation := service.NewRotationService(&service.RotationConfig{}, partnerRepo,
		service.NewLWAService(&service.LWAConfig{}))

	client := &fakeSQS{messages: messages}
	consumer := NewNotificationConsumer(&ConsumerConfig{
		QueueURL: "https://sqs.us-east-1.amazonaws.com/000000000000/rotation-queue",
	}, client, rotation)
	return consumer, client, partnerRepo
}

func msg(handle, body string) types.Message {
	return types.Message{ReceiptHandle: aws.String(handle), Body: aws.String(body)}
}

const newSecretBody = `{
	"notificationType": "APPLICATION_OAUTH_CLIENT_NEW_SECRET",
	"payload": {
		"applicationOAuthClientNewSecret": {
			"clientId": "amzn1.application-oa2-client.self",
			"newClientSecret": "secret_v2",
			"newClientSecretExpiryTime": "2027-02-28T18:25:48Z",
			"oldClientSecretExpiryTime": "2026-09-06T18:25:48Z"
		}
	}
}`

// ==================== 单元测试 ====================

func TestConsumer_AppliesNewSecret(t *testing.T) {
	consumer, client, partnerRepo := newConsumerFixture(t, []types.Message{
		msg("rh-1", newSecretBody),
	})
	ctx := context.Background()

	partnerRepo.Create(ctx, &model.Partner{
		PartnerID:    "p-self",
		AuthType:     model.AuthTypeSelf,
		ClientID:     "amzn1.application-oa2-client.self",
		ClientSecret: "secret_v1",
	})

	consumer.poll(ctx)

	partner, _ := partnerRepo.GetByPartnerID(ctx, "p-self")
	if partner.ClientSecret != "secret_v2" {
		t.Errorf("client_secret = %s, want secret_v2", partner.ClientSecret)
	}
	// 处理成功后消息必须删除
	if len(client.deleted) != 1 || client.deleted[0] != "rh-1" {
		t.Errorf("deleted = %v, want [rh-1]", client.deleted)
	}
}

func TestConsumer_PoisonMessagesDeleted(t *testing.T) {
	// 格式非法或类型未知的消息重投也不会变好，记日志后删除
	consumer, client, _ := newConsumerFixture(t, []types.Message{
		msg("rh-bad-json", `{not json`),
		msg("rh-unknown-type", `{"notificationType":"ORDER_CHANGE","payload":{}}`),
		{ReceiptHandle: aws.String("rh-nil-body")},
	})

	consumer.poll(context.Background())

	if len(client.deleted) != 3 {
		t.Errorf("毒消息应全部删除, deleted = %v", client.deleted)
	}
}

func TestConsumer_UnknownClientStillDeleted(t *testing.T) {
	// 未知 clientId 由 RotationService 丢弃并返回 nil，消息照常删除
	consumer, client, _ := newConsumerFixture(t, []types.Message{
		msg("rh-1", newSecretBody),
	})

	consumer.poll(context.Background())

	if len(client.deleted) != 1 {
		t.Errorf("未知 clientId 的消息应删除, deleted = %v", client.deleted)
	}
}

func TestConsumer_StartStop(t *testing.T) {
	consumer, _, _ := newConsumerFixture(t, nil)

	consumer.Start()
	consumer.Stop()
	// Stop 返回即表示消费循环已退出，无需断言
}
