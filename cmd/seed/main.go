package main

import (
	"fmt"
	"os"
	"time"

	"github.com/carwash-next/internal/authz"
	"github.com/carwash-next/internal/config"
	"github.com/carwash-next/internal/constants"
	"github.com/carwash-next/internal/logger"
	"github.com/carwash-next/internal/models"
	"github.com/carwash-next/internal/repository"
	"github.com/carwash-next/internal/service"
)

// 演示车主 ID
const demoUserID uint = 1

type demoOperator struct {
	Username    string
	DisplayName string
	Roles       []string
}

type demoBooking struct {
	ServiceName string
	CarNumber   string
	Price       string
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, cfg.Database.LogLevel); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 内置角色
	authzService, err := authz.NewService(models.DB)
	if err != nil {
		stdLog.Fatalf("Failed to init authz: %v", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		stdLog.Fatalf("Failed to bootstrap roles: %v", err)
	}
	roles, _ := authzService.ListRoles()
	stdLog.Printf("Builtin roles: %v", roles)

	// 演示操作员
	password := os.Getenv("CW_SEED_OPERATOR_PASSWORD")
	if password == "" {
		password = "carwash-demo-123"
	}
	operatorRepo := repository.NewOperatorRepository(models.DB)
	operators := []demoOperator{
		{Username: "finance", DisplayName: "财务", Roles: []string{"finance"}},
		{Username: "shift", DisplayName: "店长", Roles: []string{"operator"}},
		{Username: "auditor", DisplayName: "审计", Roles: []string{"auditor"}},
	}
	for _, item := range operators {
		operator, err := operatorRepo.GetByUsername(item.Username)
		if err != nil {
			stdLog.Printf("Failed to load operator %s: %v", item.Username, err)
			continue
		}
		if operator == nil {
			hash, err := models.HashPassword(password)
			if err != nil {
				stdLog.Fatalf("Failed to hash password: %v", err)
			}
			operator = &models.Operator{
				Username:     item.Username,
				DisplayName:  item.DisplayName,
				PasswordHash: hash,
			}
			if err := operatorRepo.Create(operator); err != nil {
				stdLog.Printf("Failed to create operator %s: %v", item.Username, err)
				continue
			}
			stdLog.Printf("Created operator: %s", item.Username)
		} else {
			stdLog.Printf("Operator already exists: %s", item.Username)
		}
		if err := authzService.SetOperatorRoles(operator.ID, item.Roles); err != nil {
			stdLog.Printf("Failed to assign roles to %s: %v", item.Username, err)
		}
	}

	// 演示预约单（已确认、待支付）
	bookingRepo := repository.NewBookingRepository(models.DB)
	bookings := []demoBooking{
		{ServiceName: "标准洗车", CarNumber: "沪A12345", Price: "25.00"},
		{ServiceName: "精致洗车", CarNumber: "沪B23456", Price: "68.00"},
		{ServiceName: "内饰清洁", CarNumber: "浙A34567", Price: "128.50"},
		{ServiceName: "镀晶套餐", CarNumber: "苏E45678", Price: "399.00"},
	}
	day := time.Now().Format("20060102")
	for i, item := range bookings {
		orderNo := fmt.Sprintf("CWDEMO%s%03d", day, i+1)
		existing, err := bookingRepo.GetByOrderNo(orderNo)
		if err != nil {
			stdLog.Printf("Failed to load booking %s: %v", orderNo, err)
			continue
		}
		if existing != nil {
			stdLog.Printf("Booking already exists: %s", orderNo)
			continue
		}
		booking := &models.Booking{
			OrderNo:       orderNo,
			UserID:        demoUserID,
			ServiceName:   item.ServiceName,
			CarNumber:     item.CarNumber,
			TotalPrice:    models.MustMoney(item.Price),
			Status:        constants.BookingStatusConfirmed,
			PaymentStatus: constants.BookingPaymentStatusUnpaid,
		}
		if err := bookingRepo.Create(booking); err != nil {
			stdLog.Printf("Failed to create booking %s: %v", orderNo, err)
			continue
		}
		stdLog.Printf("Created booking: %s (%s, %s)", orderNo, item.ServiceName, item.Price)
	}

	// 演示车主 token，便于联调
	token, expiresAt, err := service.NewUserAuthService(cfg).GenerateUserJWT(demoUserID, 0)
	if err != nil {
		stdLog.Printf("Failed to generate demo user token: %v", err)
	} else {
		stdLog.Printf("Demo user %d token (expires %s): %s", demoUserID, expiresAt.Format(time.RFC3339), token)
	}

	stdLog.Printf("Seed completed")
}
