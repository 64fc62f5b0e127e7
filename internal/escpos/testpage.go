package escpos

import "github.com/thereceipt/receipt-emulator/internal/emulator"

// TestReceipt returns the built-in test page: a centered bold title, a
// short item list, a bold total and a closing line, then a cut.
func TestReceipt() []byte {
	e := NewEncoder()

	e.Initialize()

	e.SetAlignment(emulator.JustifyCenter).SetBold(true)
	e.WriteLine("=== 테스트 영수증 ===")
	e.SetBold(false).LineFeed()

	e.SetAlignment(emulator.JustifyLeft)
	e.WriteLine("상품명: 테스트 상품")
	e.WriteLine("수량: 1개")
	e.WriteLine("단가: 1,000원")
	e.WriteLine("금액: 1,000원")
	e.LineFeed()

	e.WriteLine("------------------------")

	e.SetBold(true)
	e.WriteLine("총액: 1,000원")
	e.SetBold(false).LineFeed()

	e.SetAlignment(emulator.JustifyCenter)
	e.WriteLine("감사합니다!")
	e.LineFeed()

	e.Cut()

	return e.Bytes()
}
