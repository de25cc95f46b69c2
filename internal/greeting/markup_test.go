package greeting

import "testing"

func TestToMarkdownV2(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain text specials escaped",
			in:   "Скидка 5-10%. Подробности тут!",
			want: `Скидка 5\-10%\. Подробности тут\!`,
		},
		{
			name: "bold",
			in:   "Это **важно** помнить",
			want: `Это *важно* помнить`,
		},
		{
			name: "italic single delimiter",
			in:   "Это _акцент_ в тексте",
			want: `Это _акцент_ в тексте`,
		},
		{
			name: "double underscore stays literal",
			in:   "снейк__кейс",
			want: `снейк\_\_кейс`,
		},
		{
			name: "code span keeps content unescaped",
			in:   "Введите `/start 1.2`",
			want: "Введите `/start 1.2`",
		},
		{
			name: "strikethrough",
			in:   "было ~~дорого~~ выгодно",
			want: `было ~дорого~ выгодно`,
		},
		{
			name: "link with specials in label",
			in:   "Сайт: [Атлас-Банк](https://atlasbank.example/promo?a=1)",
			want: `Сайт: [Атлас\-Банк](https://atlasbank.example/promo?a=1)`,
		},
		{
			name: "bold inside converted span not reprocessed",
			in:   "[**жирная ссылка**](https://example.com)",
			want: `[\*\*жирная ссылка\*\*](https://example.com)`,
		},
		{
			name: "literal asterisk escaped",
			in:   "2 * 2 = 4",
			want: `2 \* 2 \= 4`,
		},
		{
			name: "mixed spans in order",
			in:   "**Акция**: скидка _сегодня_ на `тариф` по [ссылке](https://a.b)",
			want: `*Акция*: скидка _сегодня_ на ` + "`тариф`" + ` по [ссылке](https://a.b)`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToMarkdownV2(tt.in); got != tt.want {
				t.Errorf("ToMarkdownV2(%q)\n got %q\nwant %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripMarkup(t *testing.T) {
	in := "**Анна**, ваш _подарок_ ждёт: [тут](https://a.b) и `код`"
	want := "Анна, ваш подарок ждёт: тут и код"
	if got := StripMarkup(in); got != want {
		t.Errorf("StripMarkup() = %q, want %q", got, want)
	}
}
