package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"license-key-engine/internal/model"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetSyncService 把签发的密钥和账变流水导出到 Google Sheet 做台账备份。
// 只在核心事务提交之后异步调用，同步失败只记日志
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
}

// 全局实例，未启用时为 nil（方法对 nil 接收者是空操作）
var sheetSync *SheetSyncService

// InitSheetSync 按配置装配导出服务
func InitSheetSync(enableSync bool, credentialPath, spreadsheetID, sheetName string) error {
	if !enableSync {
		return nil
	}
	srv, err := NewSheetSyncService(credentialPath, spreadsheetID, sheetName)
	if err != nil {
		return err
	}
	sheetSync = srv
	return nil
}

func NewSheetSyncService(credentialPath, spreadsheetID, sheetName string) (*SheetSyncService, error) {
	ctx := context.Background()

	// 读取凭证文件
	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, err
	}

	// 使用服务账号授权
	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %v", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, err
	}

	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// SyncKey 把密钥当前状态写入 Sheet：已存在的行更新，不存在则追加
func (s *SheetSyncService) SyncKey(key *model.LicenseKey) error {
	if s == nil {
		return nil
	}

	// 先检查Sheet中是否已存在该Key
	rangeToSearch := fmt.Sprintf("%s!A2:A", s.sheetName)
	keyResp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, rangeToSearch).Do()
	if err != nil {
		return fmt.Errorf("查询Sheet数据失败: %v", err)
	}

	var rowIndex int
	found := false
	for i, row := range keyResp.Values {
		if len(row) > 0 && row[0] == key.Key {
			found = true
			rowIndex = i + 2 // +2因为A2开始且数组从0开始
			break
		}
	}

	expires := ""
	if key.ExpiresAt != nil {
		expires = key.ExpiresAt.Format(time.RFC3339)
	}
	activated := ""
	if key.ActivatedAt != nil {
		activated = key.ActivatedAt.Format(time.RFC3339)
	}
	values := &sheets.ValueRange{
		Values: [][]interface{}{{
			key.Key,
			key.Status,
			fmt.Sprintf("%d", key.PlanID),
			key.CreatedBy,
			fmt.Sprintf("%d/%d", key.CurrentDevices, key.MaxDevices),
			activated,
			expires,
			key.CreatedAt.Format(time.RFC3339),
		}},
	}

	if found {
		writeRange := fmt.Sprintf("%s!A%d", s.sheetName, rowIndex)
		_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, values).
			ValueInputOption("RAW").Do()
	} else {
		appendRange := fmt.Sprintf("%s!A2", s.sheetName)
		_, err = s.service.Spreadsheets.Values.Append(s.spreadsheetID, appendRange, values).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Do()
	}
	if err != nil {
		return fmt.Errorf("写入Sheet失败: %v", err)
	}
	return nil
}

// SyncTransaction 追加一条账变流水到台账表
func (s *SheetSyncService) SyncTransaction(entry *model.ResellerTransaction) error {
	if s == nil {
		return nil
	}

	values := &sheets.ValueRange{
		Values: [][]interface{}{{
			entry.Reference,
			fmt.Sprintf("%d", entry.ResellerID),
			entry.Type,
			fmt.Sprintf("%.2f", entry.Amount),
			fmt.Sprintf("%.2f", entry.BalanceBefore),
			fmt.Sprintf("%.2f", entry.BalanceAfter),
			entry.CreatedAt.Format(time.RFC3339),
		}},
	}

	appendRange := fmt.Sprintf("%s!A2", s.sheetName+"_ledger")
	_, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, appendRange, values).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Do()
	if err != nil {
		return fmt.Errorf("写入台账Sheet失败: %v", err)
	}
	return nil
}

// syncKeyAsync 事务提交后异步导出，失败只记日志
func syncKeyAsync(key *model.LicenseKey) {
	if sheetSync == nil {
		return
	}
	k := *key
	go func() {
		if err := sheetSync.SyncKey(&k); err != nil {
			logger.Warn().Err(err).Str("key", k.Key).Msg("密钥台账同步失败")
		}
	}()
}

// syncTransactionAsync 事务提交后异步导出流水
func syncTransactionAsync(entry *model.ResellerTransaction) {
	if sheetSync == nil || entry == nil {
		return
	}
	e := *entry
	go func() {
		if err := sheetSync.SyncTransaction(&e); err != nil {
			logger.Warn().Err(err).Str("reference", e.Reference).Msg("流水台账同步失败")
		}
	}()
}
